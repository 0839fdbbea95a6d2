package enrich

import (
	"errors"
	"time"

	"github.com/starford/strikezone/internal/apperr"
)

// State is a step of the enrichment run lifecycle.
type State int32

const (
	StateIdle State = iota
	StateBatching
	StateInFlight
	StateSucceeded
	StatePartiallyFailed
	StateFailed
)

var stateNames = [...]string{"idle", "batching", "in_flight", "succeeded", "partially_failed", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// FailedBatch is a batch whose keywords stay unenriched.
type FailedBatch struct {
	Index    int                 `json:"index"` // 1-based
	Keywords []string            `json:"keywords"`
	Kind     apperr.ProviderKind `json:"kind,omitempty"`
	Error    string              `json:"error"`
	Err      error               `json:"-"`
}

func newFailedBatch(index int, keywords []string, err error) FailedBatch {
	fb := FailedBatch{Index: index, Keywords: keywords, Error: err.Error(), Err: err}
	var pe *apperr.ProviderError
	if errors.As(err, &pe) {
		fb.Kind = pe.Kind
	}
	return fb
}

// Report is the outcome of one Enrich call.
type Report struct {
	State             State         `json:"state"`
	RequestedCount    int           `json:"requested_count"`
	CachedCount       int           `json:"cached_count"`
	FetchedCount      int           `json:"fetched_count"`
	Batches           int           `json:"batches"`
	SucceededKeywords []string      `json:"succeeded_keywords,omitempty"`
	Unmetered         []string      `json:"unmetered,omitempty"`
	FailedBatches     []FailedBatch `json:"failed_batches,omitempty"`
	Duration          time.Duration `json:"duration_ns"`
}

// FailedKeywords returns the keywords of every failed batch.
func (r *Report) FailedKeywords() []string {
	var out []string
	for _, fb := range r.FailedBatches {
		out = append(out, fb.Keywords...)
	}
	return out
}
