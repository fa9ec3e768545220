package monitor

import (
	"context"

	"github.com/livesync/backend/internal/session"
)

// Provider is the OS capability that owns live sessions. The engine only
// enumerates and subscribes; it never creates or ends a session.
type Provider interface {
	// Sessions returns the sessions of kind that are live right now.
	Sessions(kind session.Kind) []session.Session

	// Created streams every session of kind created after the call. The
	// channel is closed when ctx is cancelled. Implementations must not
	// drop sessions for a subscriber that keeps up.
	Created(ctx context.Context, kind session.Kind) <-chan session.Session
}

// ProviderFunc pairs two functions into a Provider.
type ProviderFunc struct {
	SessionsFunc func(kind session.Kind) []session.Session
	CreatedFunc  func(ctx context.Context, kind session.Kind) <-chan session.Session
}

func (p ProviderFunc) Sessions(kind session.Kind) []session.Session {
	if p.SessionsFunc == nil {
		return nil
	}
	return p.SessionsFunc(kind)
}

// Created returns a channel that closes with ctx when CreatedFunc is nil.
func (p ProviderFunc) Created(ctx context.Context, kind session.Kind) <-chan session.Session {
	if p.CreatedFunc != nil {
		return p.CreatedFunc(ctx, kind)
	}
	ch := make(chan session.Session)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}
