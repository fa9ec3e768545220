package report

import (
	"context"
	"sync"

	"github.com/livesync/backend/internal/session"
)

// Recorded is one event captured by a Recorder.
type Recorded struct {
	Event string
	Props session.Properties
}

// Recorder keeps every reported event in memory. If Err is set, events
// are still recorded and Err is returned.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	Err    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Report(_ context.Context, event string, props session.Properties) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Props: props.Clone()})
	return r.Err
}

// Events returns a copy of the recorded events in order.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Last returns the most recent event.
func (r *Recorder) Last() (Recorded, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Recorded{}, false
	}
	return r.events[len(r.events)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// SetErr changes the error returned by later reports.
func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}
