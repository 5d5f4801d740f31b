// Package queue holds the codes waiting to be displayed.
//
// A Queue is not safe for concurrent use. The display scheduler owns it and
// guards it together with its session state.
package queue

import (
	"github.com/balaji-balu/codeboard/internal/similarity"
)

// Threshold is the similarity at or above which two codes are treated as the
// same code.
const Threshold = 0.70

type RejectReason string

const (
	DuplicateCurrent RejectReason = "duplicate-current"
	SimilarCurrent   RejectReason = "similar-current"
	DuplicateQueued  RejectReason = "duplicate-queued"
	SimilarQueued    RejectReason = "similar-queued"
	Full             RejectReason = "full"
	Blank            RejectReason = "blank"
)

type Result struct {
	Enqueued bool
	Reason   RejectReason
}

type Queue struct {
	entries    []string
	current    string
	hasCurrent bool
	maxLen     int
}

type Option func(*Queue)

// WithMaxLen caps the number of waiting codes. Zero means unbounded.
func WithMaxLen(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxLen = n
		}
	}
}

func New(opts ...Option) *Queue {
	q := &Queue{}
	for _, o := range opts {
		o(q)
	}
	return q
}

// TryEnqueue appends code unless it repeats, or nearly repeats, the code on
// screen or any waiting code.
func (q *Queue) TryEnqueue(code string) Result {
	if code == "" {
		return Result{Reason: Blank}
	}
	if q.hasCurrent {
		if code == q.current {
			return Result{Reason: DuplicateCurrent}
		}
		if near(code, q.current) {
			return Result{Reason: SimilarCurrent}
		}
	}
	for _, e := range q.entries {
		if e == code {
			return Result{Reason: DuplicateQueued}
		}
		if near(code, e) {
			return Result{Reason: SimilarQueued}
		}
	}
	if q.maxLen > 0 && len(q.entries) >= q.maxLen {
		return Result{Reason: Full}
	}
	q.entries = append(q.entries, code)
	return Result{Enqueued: true}
}

// near absorbs float rounding so a score of exactly Threshold is rejected.
func near(a, b string) bool {
	return similarity.Similarity(a, b) >= Threshold-1e-9
}

func (q *Queue) Dequeue() (string, bool) {
	if len(q.entries) == 0 {
		return "", false
	}
	code := q.entries[0]
	q.entries[0] = ""
	q.entries = q.entries[1:]
	return code, true
}

func (q *Queue) Len() int { return len(q.entries) }

func (q *Queue) SetCurrent(code string) {
	q.current = code
	q.hasCurrent = true
}

func (q *Queue) ClearCurrent() {
	q.current = ""
	q.hasCurrent = false
}

func (q *Queue) Current() (string, bool) { return q.current, q.hasCurrent }

// Reset drops every waiting code. The on-screen code is left alone.
func (q *Queue) Reset() {
	q.entries = nil
}

func (q *Queue) Snapshot() []string {
	out := make([]string, len(q.entries))
	copy(out, q.entries)
	return out
}
