package monitor

import (
	"sync"
	"time"

	"github.com/livesync/backend/internal/session"
)

// DefaultHealthThreshold is the number of consecutive failed passes after
// which a session counts as degraded.
const DefaultHealthThreshold = 3

// HealthStatus summarizes one kind.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// KindHealth is a point-in-time copy of a kind's health.
type KindHealth struct {
	Kind             session.Kind `json:"kind"`
	Status           HealthStatus `json:"status"`
	Observed         int          `json:"observed"`
	DegradedSessions int          `json:"degradedSessions"`
	LastError        string       `json:"lastError,omitempty"`
	LastErrorAt      *time.Time   `json:"lastErrorAt,omitempty"`
}

// kindHealth tracks consecutive failure counts for one kind. Pass
// goroutines write it while the inspection server reads it.
type kindHealth struct {
	mu                sync.Mutex
	threshold         int
	enumerateFailures int
	passFailures      map[string]int // keyed by session id
	lastErr           string
	lastFail          time.Time
}

func newKindHealth(threshold int) *kindHealth {
	if threshold <= 0 {
		threshold = DefaultHealthThreshold
	}
	return &kindHealth{
		threshold:    threshold,
		passFailures: make(map[string]int),
	}
}

// recordPanic records a recovered panic during enumeration. The kind is
// marked failed: it observes nothing until the process restarts.
func (h *kindHealth) recordPanic(err error, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enumerateFailures++
	h.lastErr = err.Error()
	h.lastFail = at
}

func (h *kindHealth) recordPassSuccess(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.passFailures, id)
}

func (h *kindHealth) recordPassFailure(id string, err error, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.passFailures[id]++
	h.lastErr = err.Error()
	h.lastFail = at
}

// removeSession forgets failure tracking for a session no longer observed.
func (h *kindHealth) removeSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.passFailures, id)
}

func (h *kindHealth) snapshot(kind session.Kind, observed int) KindHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	degraded := 0
	for _, failures := range h.passFailures {
		if failures >= h.threshold {
			degraded++
		}
	}

	out := KindHealth{
		Kind:             kind,
		Status:           StatusHealthy,
		Observed:         observed,
		DegradedSessions: degraded,
		LastError:        h.lastErr,
	}
	switch {
	case h.enumerateFailures > 0:
		out.Status = StatusFailed
	case degraded > 0:
		out.Status = StatusDegraded
	}
	if !h.lastFail.IsZero() {
		at := h.lastFail
		out.LastErrorAt = &at
	}
	return out
}
