// Package livesync keeps a remote collector informed about the live
// sessions a host application runs.
//
// The host registers each session kind once with an Extractor. From then
// on every live session of that kind is followed, and each reportable
// change (active with a delivery token) is reported as an upsert. A
// session that ends, is dismissed, loses its token, or disappears across
// a restart is reported as a removal.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/op/go-logging"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/identity"
	"github.com/livesync/backend/internal/monitor"
	"github.com/livesync/backend/internal/persist"
	"github.com/livesync/backend/internal/reconcile"
	"github.com/livesync/backend/internal/report"
	"github.com/livesync/backend/internal/session"
	"github.com/livesync/backend/internal/settings"
)

var log = logging.MustGetLogger("livesync")

type (
	Kind       = session.Kind
	Session    = session.Session
	Status     = session.Status
	Properties = session.Properties
	Extractor  = session.Extractor
	Record     = persist.Record
	Reporter   = report.Reporter
	Provider   = monitor.Provider
	KindHealth = monitor.KindHealth
	Stats      = report.Stats
	Identity   = identity.Holder
	Clock      = clock.Clock
	Settings   = settings.Store
)

const (
	StatusUnknown = session.StatusUnknown
	Active        = session.Active
	Stale         = session.Stale
	Ended         = session.Ended
	Dismissed     = session.Dismissed
)

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("livesync: engine closed")

// NewIdentity returns the installation and user identity stamped on
// records and envelopes. An empty installationID is derived from the host.
func NewIdentity(installationID, userID string) *Identity {
	return identity.New(installationID, userID)
}

// Options configures an Engine. Provider is required.
type Options struct {
	Provider Provider
	// Settings holds the persisted records. Defaults to an in-memory
	// store, which forgets everything on exit.
	Settings Settings
	// StateKey overrides the settings key of the records document.
	StateKey string
	// Retention drops records older than this on load. Zero selects the
	// default of 8h; negative disables expiry.
	Retention time.Duration

	// Reporter receives every upsert and removal. Defaults to a sink
	// that only logs.
	Reporter Reporter
	// QueueSize > 0 delivers through a bounded queue so a slow collector
	// never blocks a reconcile pass. Zero reports synchronously.
	QueueSize int
	// Tap receives every event synchronously, next to Reporter. Used by
	// the inspection server.
	Tap Reporter

	Event      string
	Expiration time.Duration

	Identity *Identity
	// Tracked is the in-memory table of observed sessions. Pass one to
	// share it with the inspection server.
	Tracked         *session.Store
	Clock           Clock
	HealthThreshold int
}

// Engine wires the observers, the reconciler and the record store
// together. It is safe for concurrent use.
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc

	provider        Provider
	registry        *monitor.Registry
	records         *persist.Store
	reconciler      *reconcile.Reconciler
	tracked         *session.Store
	identity        *Identity
	clock           Clock
	healthThreshold int

	async  *report.Async
	closer io.Closer

	// mu is held for reading while a kind starts, so Close never waits
	// on observers that are still being added.
	mu     sync.RWMutex
	closed bool
}

// New builds an Engine. Observation stops when ctx is done or Close is
// called.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("livesync: provider is required")
	}
	if opts.Settings == nil {
		opts.Settings = settings.NewMemoryStore()
	}
	if opts.Reporter == nil {
		opts.Reporter = report.LogSink{}
	}
	if opts.Identity == nil {
		opts.Identity = identity.New("", "")
	}
	if opts.Tracked == nil {
		opts.Tracked = session.NewStore()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	storeOpts := []persist.Option{persist.WithClock(opts.Clock)}
	if opts.StateKey != "" {
		storeOpts = append(storeOpts, persist.WithKey(opts.StateKey))
	}
	switch {
	case opts.Retention < 0:
		storeOpts = append(storeOpts, persist.WithRetention(0))
	case opts.Retention > 0:
		storeOpts = append(storeOpts, persist.WithRetention(opts.Retention))
	}
	records := persist.New(opts.Settings, storeOpts...)

	e := &Engine{
		provider:        opts.Provider,
		registry:        monitor.NewRegistry(),
		records:         records,
		tracked:         opts.Tracked,
		identity:        opts.Identity,
		clock:           opts.Clock,
		healthThreshold: opts.HealthThreshold,
	}

	var delivery Reporter = opts.Reporter
	if opts.QueueSize > 0 {
		e.async = report.NewAsync(opts.Reporter, opts.QueueSize)
		delivery = e.async
	}
	if c, ok := delivery.(io.Closer); ok {
		e.closer = c
	}
	if opts.Tap != nil {
		delivery = report.Multi{delivery, opts.Tap}
	}

	recOpts := []reconcile.Option{
		reconcile.WithClock(opts.Clock),
		reconcile.WithUserID(opts.Identity.UserID),
	}
	if opts.Event != "" {
		recOpts = append(recOpts, reconcile.WithEvent(opts.Event))
	}
	if opts.Expiration > 0 {
		recOpts = append(recOpts, reconcile.WithExpiration(opts.Expiration))
	}
	e.reconciler = reconcile.New(records, delivery, recOpts...)

	e.ctx, e.cancel = context.WithCancel(ctx)
	return e, nil
}

// Register starts observing kind. The live sessions of kind are
// reconciled and the records of sessions that no longer exist are
// removed before Register returns. Registering a kind again is a no-op
// and returns false.
func (e *Engine) Register(kind Kind, extract Extractor) (bool, error) {
	if extract == nil {
		return false, fmt.Errorf("livesync: nil extractor for %s", kind)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false, ErrClosed
	}

	started := e.registry.StartIfAbsent(e.ctx, kind, func() monitor.Watcher {
		return monitor.NewObserver(monitor.ObserverConfig{
			Kind:            kind,
			Extract:         extract,
			Provider:        e.provider,
			Reconciler:      e.reconciler,
			Records:         e.records,
			Tracked:         e.tracked,
			Clock:           e.clock,
			HealthThreshold: e.healthThreshold,
		})
	})
	if !started {
		log.Debugf("Kind %s already registered", kind)
	}
	return started, nil
}

// SetUserID changes the user stamped on records created from now on.
// Existing records keep their original user.
func (e *Engine) SetUserID(id string) {
	e.identity.SetUserID(id)
}

func (e *Engine) UserID() string {
	return e.identity.UserID()
}

func (e *Engine) InstallationID() string {
	return e.identity.InstallationID()
}

// Kinds lists the registered kinds.
func (e *Engine) Kinds() []Kind {
	return e.registry.Kinds()
}

// Health returns the health of every registered kind.
func (e *Engine) Health() []KindHealth {
	return e.registry.Health()
}

// Records returns the persisted records, keyed by session id.
func (e *Engine) Records() map[string]Record {
	return e.records.Load()
}

// Stats returns the delivery queue counters. They are zero when
// reporting is synchronous.
func (e *Engine) Stats() Stats {
	if e.async == nil {
		return Stats{}
	}
	return e.async.Stats()
}

// Registry exposes the per-kind observer registry.
func (e *Engine) Registry() *monitor.Registry { return e.registry }

// Store exposes the persisted record store.
func (e *Engine) Store() *persist.Store { return e.records }

// Tracked exposes the in-memory table of observed sessions.
func (e *Engine) Tracked() *session.Store { return e.tracked }

// Close stops every observer, waits for in-flight passes, delivers what
// is still queued and closes the Reporter if it is an io.Closer. The Tap
// and the Settings store are left open.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.registry.Wait()

	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}
