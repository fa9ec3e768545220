package report

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/livesync/backend/internal/session"
)

var (
	// ErrQueueFull is returned when Async drops an event.
	ErrQueueFull = errors.New("report queue full")
	// ErrClosed is returned by a reporter after Close.
	ErrClosed = errors.New("reporter closed")
)

const DefaultQueueSize = 256

type job struct {
	ctx   context.Context
	event string
	props session.Properties
}

// Async queues events for a single worker goroutine that delivers them
// to the wrapped reporter in order. Report never blocks.
type Async struct {
	next  Reporter
	queue chan job
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewAsync starts the worker. A non-positive size selects DefaultQueueSize.
func NewAsync(next Reporter, size int) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{
		next:  next,
		queue: make(chan job, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Report(ctx context.Context, event string, props session.Properties) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- job{ctx: context.WithoutCancel(ctx), event: event, props: props.Clone()}:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		if err := a.next.Report(j.ctx, j.event, j.props); err != nil {
			a.failed.Add(1)
			log.Warningf("Reporting %s failed: %v", j.event, err)
			continue
		}
		a.delivered.Add(1)
	}
}

// Close stops accepting events, delivers what is queued, then closes the
// wrapped reporter if it is an io.Closer.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	if c, ok := a.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Stats is a snapshot of the Async counters.
type Stats struct {
	Queued    int   `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

func (a *Async) Stats() Stats {
	return Stats{
		Queued:    len(a.queue),
		Delivered: a.delivered.Load(),
		Failed:    a.failed.Load(),
		Dropped:   a.dropped.Load(),
	}
}
