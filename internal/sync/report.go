package sync

import (
	"fmt"
	"sort"
	stdsync "sync"
	"time"
)

// Outcome classifies what happened to one document during a pass.
type Outcome string

const (
	// OutcomeCreated means the document was materialized for the first time.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated means the document was rematerialized with new content.
	OutcomeUpdated Outcome = "updated"
	// OutcomeSkipped means the remote version matched the sync record and
	// no content was written.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means fetching or writing the document failed. Err
	// carries the cause.
	OutcomeFailed Outcome = "failed"
)

// Result records the outcome for a single visited document.
type Result struct {
	Root     string // configured root name this node belongs to
	RemoteID string
	Title    string
	Path     string
	Version  int
	Outcome  Outcome
	Err      error
}

// Report aggregates per-document outcomes for one pull pass.
// It is safe for concurrent appends while a pass is running; read it only
// after the pass returns.
type Report struct {
	Results  []Result
	Started  time.Time
	Duration time.Duration

	mu stdsync.Mutex
}

func newReport() *Report {
	return &Report{Started: time.Now()}
}

func (r *Report) add(res Result) {
	r.mu.Lock()
	r.Results = append(r.Results, res)
	r.mu.Unlock()
}

func (r *Report) finish() {
	r.Duration = time.Since(r.Started)
}

// Count returns how many results carry the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Failed returns the results that failed, in report order.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether every visited document completed without failure.
func (r *Report) OK() bool {
	return r.Count(OutcomeFailed) == 0
}

// SortByPath orders results by local path for stable display. Concurrent
// subtrees complete in nondeterministic order, so callers that print the
// report should sort first.
func (r *Report) SortByPath() {
	sort.Slice(r.Results, func(i, j int) bool {
		if r.Results[i].Path != r.Results[j].Path {
			return r.Results[i].Path < r.Results[j].Path
		}
		return r.Results[i].RemoteID < r.Results[j].RemoteID
	})
}

// Summary returns a one-line count summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d created, %d updated, %d unchanged, %d failed",
		r.Count(OutcomeCreated), r.Count(OutcomeUpdated), r.Count(OutcomeSkipped), r.Count(OutcomeFailed))
}
