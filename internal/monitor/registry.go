package monitor

import (
	"context"
	"sort"
	"sync"

	"github.com/livesync/backend/internal/session"
)

// Watcher is what the Registry starts once per kind.
type Watcher interface {
	Start(ctx context.Context, wg *sync.WaitGroup)
	Health() KindHealth
}

// Registry makes sure at most one Watcher runs per kind.
type Registry struct {
	mu       sync.Mutex
	watchers map[session.Kind]Watcher
	wg       sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{watchers: make(map[session.Kind]Watcher)}
}

// StartIfAbsent builds and starts a watcher for kind unless one was
// already started, and reports whether it did. The kind is reserved
// before factory runs, so concurrent callers for the same kind call
// factory once. A factory or Start that panics releases the kind and
// reports false.
func (r *Registry) StartIfAbsent(ctx context.Context, kind session.Kind, factory func() Watcher) bool {
	r.mu.Lock()
	if _, ok := r.watchers[kind]; ok {
		r.mu.Unlock()
		return false
	}
	r.watchers[kind] = nil
	r.mu.Unlock()

	started := false
	defer func() {
		if started {
			return
		}
		r.mu.Lock()
		delete(r.watchers, kind)
		r.mu.Unlock()
		if p := recover(); p != nil {
			log.Errorf("Starting observer for %s panicked: %v", kind, p)
		}
	}()

	w := factory()
	log.Infof("Starting observer for %s", kind)
	w.Start(ctx, &r.wg)
	started = true

	r.mu.Lock()
	r.watchers[kind] = w
	r.mu.Unlock()
	return true
}

// Kinds lists the registered kinds in name order.
func (r *Registry) Kinds() []session.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]session.Kind, 0, len(r.watchers))
	for k := range r.watchers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Health returns the health of every started watcher in kind order.
// Watchers still starting are left out.
func (r *Registry) Health() []KindHealth {
	r.mu.Lock()
	watchers := make([]Watcher, 0, len(r.watchers))
	for _, w := range r.watchers {
		if w != nil {
			watchers = append(watchers, w)
		}
	}
	r.mu.Unlock()

	out := make([]KindHealth, 0, len(watchers))
	for _, w := range watchers {
		out = append(out, w.Health())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Wait blocks until every goroutine started by the watchers has exited.
// Cancel the context passed to StartIfAbsent first.
func (r *Registry) Wait() {
	r.wg.Wait()
}
