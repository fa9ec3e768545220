package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/livesync/backend/internal/session"
)

type countingWatcher struct {
	kind    session.Kind
	started atomic.Int32
}

func (w *countingWatcher) Start(ctx context.Context, wg *sync.WaitGroup) {
	w.started.Add(1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
	}()
}

func (w *countingWatcher) Health() KindHealth {
	return KindHealth{Kind: w.kind, Status: StatusHealthy}
}

func TestRegistryStartsOncePerKind(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	var factoryCalls atomic.Int32
	w := &countingWatcher{kind: kind}
	factory := func() Watcher {
		factoryCalls.Add(1)
		return w
	}

	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.StartIfAbsent(ctx, kind, factory) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(1), factoryCalls.Load())
	assert.Equal(t, int32(1), w.started.Load())

	cancel()
	r.Wait()
}

func TestRegistryKindsAndHealth(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		r.Wait()
	}()

	for _, k := range []session.Kind{"Zeta", "Alpha"} {
		k := k
		assert.True(t, r.StartIfAbsent(ctx, k, func() Watcher { return &countingWatcher{kind: k} }))
	}
	assert.False(t, r.StartIfAbsent(ctx, "Alpha", func() Watcher {
		t.Error("factory called for a started kind")
		return nil
	}))

	assert.Equal(t, []session.Kind{"Alpha", "Zeta"}, r.Kinds())
	health := r.Health()
	if assert.Len(t, health, 2) {
		assert.Equal(t, session.Kind("Alpha"), health[0].Kind)
		assert.Equal(t, session.Kind("Zeta"), health[1].Kind)
	}
}

type panickingWatcher struct{}

func (panickingWatcher) Start(context.Context, *sync.WaitGroup) { panic("start failed") }

func (panickingWatcher) Health() KindHealth { return KindHealth{} }

func TestRegistryReleasesKindAfterPanic(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		r.Wait()
	}()

	assert.False(t, r.StartIfAbsent(ctx, kind, func() Watcher { panic("factory failed") }))
	assert.Empty(t, r.Kinds())

	assert.False(t, r.StartIfAbsent(ctx, kind, func() Watcher { return panickingWatcher{} }))
	assert.Empty(t, r.Kinds())

	w := &countingWatcher{kind: kind}
	assert.True(t, r.StartIfAbsent(ctx, kind, func() Watcher { return w }))
	assert.Equal(t, []session.Kind{kind}, r.Kinds())
	assert.Len(t, r.Health(), 1)
}

func TestRegistryWithObservers(t *testing.T) {
	h := newHarness(t)
	h.provider.NewSession(kind, "abc").SetToken([]byte{1})
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 3; i++ {
		r.StartIfAbsent(ctx, kind, func() Watcher { return h.observer(staticTopic) })
	}
	assert.Len(t, h.eventsFor("abc"), 1)
	assert.Equal(t, 3, h.provider.Sessions(kind)[0].(interface{ Subscribers() int }).Subscribers())

	cancel()
	r.Wait()
}

func TestKindHealthThreshold(t *testing.T) {
	h := newKindHealth(0)
	assert.Equal(t, DefaultHealthThreshold, h.threshold)

	for i := 0; i < DefaultHealthThreshold-1; i++ {
		h.recordPassFailure("a", assert.AnError, start)
	}
	assert.Equal(t, StatusHealthy, h.snapshot(kind, 1).Status)
	h.recordPassFailure("a", assert.AnError, start)
	assert.Equal(t, StatusDegraded, h.snapshot(kind, 1).Status)

	h.recordPassSuccess("a")
	assert.Equal(t, StatusHealthy, h.snapshot(kind, 1).Status)

	h.recordPassFailure("b", assert.AnError, start)
	h.removeSession("b")
	snap := h.snapshot(kind, 0)
	assert.Equal(t, 0, snap.DegradedSessions)
	assert.Equal(t, assert.AnError.Error(), snap.LastError)
}
