// Package reconcile turns the observed state of one session into at most
// one upsert or removal report, keeping the persisted record in step.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/op/go-logging"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/persist"
	"github.com/livesync/backend/internal/report"
	"github.com/livesync/backend/internal/session"
)

var log = logging.MustGetLogger("reconcile")

var (
	// ErrStore wraps failures to write persisted records.
	ErrStore = errors.New("store")
	// ErrExtract wraps failures of the topic and properties extractor.
	ErrExtract = errors.New("extract")
	// ErrReport wraps failures of the reporter.
	ErrReport = errors.New("report")
)

// Outcome says what a pass did.
type Outcome int

const (
	// Skipped: nothing reportable and nothing to remove, or the pass
	// was aborted before touching the store.
	Skipped Outcome = iota
	// Unchanged: the session matches its record; nothing was sent.
	Unchanged
	// Upserted: the record was written and an upsert emitted.
	Upserted
	// Removed: the record was deleted and a removal emitted.
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Unchanged:
		return "unchanged"
	case Upserted:
		return "upserted"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Reconciler runs reconcile passes. Passes for the same session id are
// serialized; passes for different ids run concurrently and only meet in
// the store.
type Reconciler struct {
	store      *persist.Store
	reporter   report.Reporter
	clock      clock.Clock
	userID     func() string
	event      string
	expiration time.Duration
	locks      *keyedMutex
}

type Option func(*Reconciler)

func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// WithUserID sets the source of the identity stamped on new records.
func WithUserID(fn func() string) Option {
	return func(r *Reconciler) { r.userID = fn }
}

// WithEvent overrides report.EventName.
func WithEvent(name string) Option {
	return func(r *Reconciler) { r.event = name }
}

// WithExpiration overrides DefaultExpiration.
func WithExpiration(d time.Duration) Option {
	return func(r *Reconciler) { r.expiration = d }
}

func New(store *persist.Store, reporter report.Reporter, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:      store,
		reporter:   reporter,
		clock:      clock.Real(),
		userID:     func() string { return "" },
		event:      report.EventName,
		expiration: DefaultExpiration,
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile runs one pass for s. extract is only called when s is
// reportable.
func (r *Reconciler) Reconcile(ctx context.Context, s session.Session, extract session.Extractor) (Outcome, error) {
	unlock := r.locks.Lock(s.ID())
	defer unlock()

	snap := session.Snap(s)
	existing, has := r.store.Get(snap.ID)

	if !snap.Reportable() {
		if !has {
			return Skipped, nil
		}
		return r.remove(ctx, existing)
	}

	topic, props, err := safeExtract(extract, s)
	if err != nil {
		return Skipped, fmt.Errorf("%w: %s: %v", ErrExtract, snap.ID, err)
	}
	custom, err := persist.NormalizeProperties(props)
	if err != nil {
		return Skipped, fmt.Errorf("%w: %s: properties are not JSON: %v", ErrExtract, snap.ID, err)
	}

	candidate := persist.Record{
		KindName:  string(snap.Kind),
		ID:        snap.ID,
		Status:    snap.Status,
		PushToken: append([]byte(nil), snap.Token...),
		Topic:     topic,
		Custom:    custom,
	}
	if has {
		candidate.CreationDate = existing.CreationDate
		candidate.UserID = existing.UserID
	} else {
		candidate.CreationDate = r.clock.Now().UTC().Truncate(time.Millisecond)
		candidate.UserID = r.userID()
	}

	if has && existing.Equal(candidate) {
		return Unchanged, nil
	}

	err = r.store.Update(func(records map[string]persist.Record) {
		records[candidate.ID] = candidate
	})
	if err != nil {
		return Skipped, fmt.Errorf("%w: saving %s: %v", ErrStore, snap.ID, err)
	}

	log.Debugf("Upserting %s", snap.Describe())
	if err := r.reporter.Report(ctx, r.event, UpsertProperties(candidate, r.expiration)); err != nil {
		return Upserted, fmt.Errorf("%w: upsert %s: %v", ErrReport, snap.ID, err)
	}
	return Upserted, nil
}

// Forget removes the record of a session that is no longer live, emitting
// a removal if one existed.
func (r *Reconciler) Forget(ctx context.Context, id string) (Outcome, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	existing, has := r.store.Get(id)
	if !has {
		return Skipped, nil
	}
	return r.remove(ctx, existing)
}

func (r *Reconciler) remove(ctx context.Context, existing persist.Record) (Outcome, error) {
	err := r.store.Update(func(records map[string]persist.Record) {
		delete(records, existing.ID)
	})
	if err != nil {
		return Skipped, fmt.Errorf("%w: deleting %s: %v", ErrStore, existing.ID, err)
	}

	log.Debugf("Removing %s (%s)", existing.ID, existing.KindName)
	if err := r.reporter.Report(ctx, r.event, RemovalProperties(existing)); err != nil {
		return Removed, fmt.Errorf("%w: removal %s: %v", ErrReport, existing.ID, err)
	}
	return Removed, nil
}

func safeExtract(extract session.Extractor, s session.Session) (topic string, props session.Properties, err error) {
	if extract == nil {
		return "", nil, errors.New("no extractor")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extractor panicked: %v", p)
		}
	}()
	return extract(s)
}
