package tracker

import "time"

// Entry is one target's line in a BatchReport.
type Entry struct {
	TargetID    string  `json:"target_id"`
	DisplayName string  `json:"display_name"`
	Outcome     Outcome `json:"outcome"`
}

// Totals summarizes a BatchReport.
type Totals struct {
	Count        int `json:"count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

// BatchReport collects per-target outcomes in input order.
// Use Add to append entries so Totals stays consistent with PerTarget.
type BatchReport struct {
	PerTarget  []Entry   `json:"per_target"`
	Totals     Totals    `json:"totals"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewBatchReport returns an empty report with capacity for n entries.
func NewBatchReport(n int) BatchReport {
	return BatchReport{PerTarget: make([]Entry, 0, n)}
}

// Add appends the outcome for target and updates the totals.
func (r *BatchReport) Add(target Target, outcome Outcome) {
	r.PerTarget = append(r.PerTarget, Entry{
		TargetID:    target.ID,
		DisplayName: target.DisplayName,
		Outcome:     outcome,
	})
	r.Totals.Count++
	if outcome.OK() {
		r.Totals.SuccessCount++
	} else {
		r.Totals.ErrorCount++
	}
}

// Successes returns the entries whose outcome succeeded.
func (r BatchReport) Successes() []Entry {
	var out []Entry
	for _, entry := range r.PerTarget {
		if entry.Outcome.OK() {
			out = append(out, entry)
		}
	}
	return out
}

// FailuresByKind counts failed entries per kind.
func (r BatchReport) FailuresByKind() map[ErrorKind]int {
	out := make(map[ErrorKind]int)
	for _, entry := range r.PerTarget {
		if !entry.Outcome.OK() {
			out[entry.Outcome.Kind()]++
		}
	}
	return out
}
