package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/follower-tracker/internal/progress"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

type recordingWriter struct {
	mu     sync.Mutex
	writes map[string][]tracker.JobProgress
	err    error
}

func (w *recordingWriter) UpdateProgress(_ context.Context, jobID string, p tracker.JobProgress) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writes == nil {
		w.writes = make(map[string][]tracker.JobProgress)
	}
	w.writes[jobID] = append(w.writes[jobID], p)
	return w.err
}

func (w *recordingWriter) last(jobID string) tracker.JobProgress {
	w.mu.Lock()
	defer w.mu.Unlock()
	writes := w.writes[jobID]
	return writes[len(writes)-1]
}

func TestJobSinkAccumulatesAcrossBatches(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	writer := &recordingWriter{}
	sink := NewJobSink(writer)
	ctx := context.Background()

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{JobID: "j1", TS: ts, Stage: progress.StageJobStart, Total: 3},
		{JobID: "j1", TS: ts.Add(time.Second), Stage: progress.StageTargetDone, Index: 1, Result: progress.ResultSuccess},
	}))
	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{JobID: "j1", TS: ts.Add(2 * time.Second), Stage: progress.StageTargetDone, Index: 2, Result: "not_found"},
	}))

	assert.Len(t, writer.writes["j1"], 2)
	assert.Equal(t, tracker.JobProgress{
		Total: 3, Done: 2, Succeeded: 1, Failed: 1, UpdatedAt: ts.Add(2 * time.Second),
	}, writer.last("j1"))
}

func TestJobSinkForgetsFinishedJobs(t *testing.T) {
	t.Parallel()

	ts := time.Now()
	writer := &recordingWriter{}
	sink := NewJobSink(writer)
	ctx := context.Background()

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{JobID: "j1", TS: ts, Stage: progress.StageJobStart, Total: 1},
		{JobID: "j1", TS: ts, Stage: progress.StageTargetDone, Index: 1, Result: progress.ResultSuccess},
		{JobID: "j1", TS: ts, Stage: progress.StageJobDone, Result: "succeeded"},
	}))
	assert.Equal(t, 1, writer.last("j1").Done)
	assert.Empty(t, sink.jobs)
	require.NoError(t, sink.Close(ctx))
}

func TestJobSinkReportsWriterErrors(t *testing.T) {
	t.Parallel()

	sink := NewJobSink(&recordingWriter{err: errors.New("store down")})
	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: "j1", TS: time.Now(), Stage: progress.StageJobStart, Total: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestLogSinkWritesEvents(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "j1", TS: time.Now(), Stage: progress.StageTargetDone, Index: 1, TargetID: "p1", Result: progress.ResultSuccess},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "p1", entries[0].ContextMap()["target_id"])
	assert.Equal(t, "target_done", entries[0].ContextMap()["stage"])
}
