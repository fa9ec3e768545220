package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/op/go-logging"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/persist"
	"github.com/livesync/backend/internal/reconcile"
	"github.com/livesync/backend/internal/session"
)

var log = logging.MustGetLogger("monitor")

// ObserverConfig wires an Observer to its collaborators.
type ObserverConfig struct {
	Kind       session.Kind
	Extract    session.Extractor
	Provider   Provider
	Reconciler *reconcile.Reconciler
	Records    *persist.Store
	// Tracked receives every observed session. It may be shared between
	// observers of different kinds.
	Tracked         *session.Store
	Clock           clock.Clock
	HealthThreshold int
}

// Observer follows every live session of one kind and runs a reconcile
// pass for each change.
type Observer struct {
	kind       session.Kind
	extract    session.Extractor
	provider   Provider
	reconciler *reconcile.Reconciler
	records    *persist.Store
	tracked    *session.Store
	clock      clock.Clock
	health     *kindHealth
	wg         *sync.WaitGroup
}

func NewObserver(cfg ObserverConfig) *Observer {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Tracked == nil {
		cfg.Tracked = session.NewStore()
	}
	return &Observer{
		kind:       cfg.Kind,
		extract:    cfg.Extract,
		provider:   cfg.Provider,
		reconciler: cfg.Reconciler,
		records:    cfg.Records,
		tracked:    cfg.Tracked,
		clock:      cfg.Clock,
		health:     newKindHealth(cfg.HealthThreshold),
	}
}

func (o *Observer) Kind() session.Kind { return o.kind }

// Start observes the live sessions, removes the records of sessions that
// are gone, then keeps observing newly created sessions in the
// background until ctx is done. Every goroutine it starts is tracked by
// wg.
func (o *Observer) Start(ctx context.Context, wg *sync.WaitGroup) {
	o.wg = wg

	// Subscribe first so nothing created during enumeration is missed.
	created := o.provider.Created(ctx, o.kind)

	if err := o.enumerate(ctx); err != nil {
		o.health.recordPanic(err, o.clock.Now())
		log.Errorf("%s: enumeration failed: %v", o.kind, err)
	}

	o.spawn(func() {
		for s := range created {
			log.Debugf("%s: new session %s", o.kind, s.ID())
			o.observe(ctx, s)
		}
		log.Debugf("%s: creation stream ended", o.kind)
	})
}

func (o *Observer) enumerate(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			log.Errorf("%s: recovered panic during enumeration: %v\n%s", o.kind, p, debug.Stack())
		}
	}()

	unseen := make(map[string]bool)
	for _, id := range o.records.IDsByKind()[string(o.kind)] {
		unseen[id] = true
	}

	for _, s := range o.provider.Sessions(o.kind) {
		log.Debugf("%s: current session %s", o.kind, session.Snap(s).Describe())
		delete(unseen, s.ID())
		o.observe(ctx, s)
	}

	for id := range unseen {
		log.Debugf("%s: session %s is gone", o.kind, id)
		out, err := o.reconciler.Forget(ctx, id)
		if err != nil {
			log.Warningf("%s: removing unseen session %s: %v", o.kind, id, err)
			continue
		}
		log.Infof("%s: %s unseen session %s", o.kind, out, id)
	}
	return nil
}

// observe starts following s unless it is already followed.
func (o *Observer) observe(ctx context.Context, s session.Session) {
	id := s.ID()
	if !o.tracked.Add(id, o.kind, o.clock.Now()) {
		return
	}

	statuses := s.StatusUpdates(ctx)
	tokens := s.TokenUpdates(ctx)
	contents := s.ContentUpdates(ctx)

	o.pass(ctx, s, session.EventInitial)

	var streams sync.WaitGroup
	streams.Add(3)
	o.spawn(func() {
		defer streams.Done()
		for st := range statuses {
			log.Debugf("%s: %s status update: %s", o.kind, id, st)
			o.pass(ctx, s, session.EventStatus)
		}
		log.Debugf("%s: %s status updates ended", o.kind, id)
	})
	o.spawn(func() {
		defer streams.Done()
		for range tokens {
			log.Debugf("%s: %s token update", o.kind, id)
			o.pass(ctx, s, session.EventToken)
		}
		log.Debugf("%s: %s token updates ended", o.kind, id)
	})
	o.spawn(func() {
		defer streams.Done()
		for range contents {
			log.Debugf("%s: %s content update", o.kind, id)
			o.pass(ctx, s, session.EventContent)
		}
		log.Debugf("%s: %s content updates ended", o.kind, id)
	})
	o.spawn(func() {
		streams.Wait()
		o.tracked.Remove(id)
		o.health.removeSession(id)
	})
}

// pass runs one reconcile pass. Failures stay with the session.
func (o *Observer) pass(ctx context.Context, s session.Session, evType session.EventType) {
	id := s.ID()
	defer func() {
		if p := recover(); p != nil {
			o.health.recordPassFailure(id, fmt.Errorf("panic: %v", p), o.clock.Now())
			log.Errorf("%s: recovered panic in %s pass for %s: %v\n%s", o.kind, evType, id, p, debug.Stack())
		}
	}()

	snap := session.Snap(s)
	log.Debugf("%s: %s pass for %s", o.kind, evType, snap.Describe())

	out, err := o.reconciler.Reconcile(ctx, s, o.extract)
	o.tracked.Touch(session.Event{Type: evType, SessionID: id, Kind: o.kind, At: o.clock.Now()}, snap)

	if err != nil {
		o.health.recordPassFailure(id, err, o.clock.Now())
		switch {
		case errors.Is(err, reconcile.ErrStore):
			log.Errorf("%s: %v", o.kind, err)
		default:
			log.Warningf("%s: %v", o.kind, err)
		}
		return
	}
	o.health.recordPassSuccess(id)
	if out == reconcile.Upserted || out == reconcile.Removed {
		log.Infof("%s: %s %s", o.kind, out, id)
	}
}

func (o *Observer) spawn(fn func()) {
	if o.wg != nil {
		o.wg.Add(1)
	}
	go func() {
		if o.wg != nil {
			defer o.wg.Done()
		}
		defer func() {
			if p := recover(); p != nil {
				log.Errorf("%s: recovered panic: %v\n%s", o.kind, p, debug.Stack())
			}
		}()
		fn()
	}()
}

// Health returns the kind's current health.
func (o *Observer) Health() KindHealth {
	return o.health.snapshot(o.kind, o.tracked.Count(o.kind))
}
