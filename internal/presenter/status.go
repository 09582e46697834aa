// Package presenter projects generation results into view state: the
// per-submission status machine and the gallery card shape.
package presenter

import (
	"errors"
	"fmt"
	"sync"
)

// Status is the view state of a single generation submission.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// allowed lists the only reachable successor states.
var allowed = map[Status][]Status{
	StatusIdle:       {StatusQueued},
	StatusQueued:     {StatusGenerating},
	StatusGenerating: {StatusCompleted, StatusFailed},
}

// Terminal reports whether no further transition is possible without a reset.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to Status) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Tracker holds the status of one submission slot. A new submission resets a
// terminal slot to idle before queueing it.
type Tracker struct {
	mu      sync.Mutex
	status  Status
	history []Status
	onMove  func(from, to Status)
}

// NewTracker returns a tracker in the idle state. onMove, if non-nil, observes every transition.
func NewTracker(onMove func(from, to Status)) *Tracker {
	return &Tracker{status: StatusIdle, history: []Status{StatusIdle}, onMove: onMove}
}

// Status returns the current state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// History returns every state the tracker has been in, oldest first.
func (t *Tracker) History() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Status, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Tracker) move(to Status) error {
	t.mu.Lock()
	from := t.status
	if !CanTransition(from, to) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	t.status = to
	t.history = append(t.history, to)
	t.mu.Unlock()

	if t.onMove != nil {
		t.onMove(from, to)
	}
	return nil
}

// Submit queues a new submission. A terminal tracker is reset to idle first;
// submitting while queued or generating is rejected.
func (t *Tracker) Submit() error {
	t.mu.Lock()
	if t.status.Terminal() {
		t.status = StatusIdle
		t.history = append(t.history, StatusIdle)
	}
	t.mu.Unlock()
	return t.move(StatusQueued)
}

// Start marks the queued submission as generating.
func (t *Tracker) Start() error { return t.move(StatusGenerating) }

// Complete marks the generation as finished successfully.
func (t *Tracker) Complete() error { return t.move(StatusCompleted) }

// Fail marks the generation as failed.
func (t *Tracker) Fail() error { return t.move(StatusFailed) }
