// Package dispatcher runs the refresh workers over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// Runner consumes queue items until its context ends.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher owns the queue and the workers draining it. The server starts
// exactly one worker so scrapes never overlap.
type Dispatcher struct {
	queue   tracker.Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue tracker.Queue, workers ...Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes and every worker returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item tracker.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
