package mock

import (
	"context"
	"sync"

	"github.com/op/go-logging"

	"github.com/livesync/backend/internal/session"
)

var log = logging.MustGetLogger("mock")

// Provider simulates the OS side: it owns live sessions and announces
// new ones on per-kind creation streams.
type Provider struct {
	mu       sync.Mutex
	live     map[session.Kind][]*Session
	byID     map[string]*Session
	creation map[session.Kind]*stream[session.Session]
}

func NewProvider() *Provider {
	return &Provider{
		live:     make(map[session.Kind][]*Session),
		byID:     make(map[string]*Session),
		creation: make(map[session.Kind]*stream[session.Session]),
	}
}

// Add makes s live without announcing it, as if it existed before the
// process started.
func (p *Provider) Add(s *Session) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byID[s.ID()]; ok {
		return s
	}
	p.byID[s.ID()] = s
	p.live[s.Kind()] = append(p.live[s.Kind()], s)
	return s
}

// NewSession adds a fresh active session without announcing it.
func (p *Provider) NewSession(kind session.Kind, id string) *Session {
	return p.Add(NewSession(kind, id))
}

// Create adds a fresh active session and announces it.
func (p *Provider) Create(kind session.Kind, id string) *Session {
	s := p.NewSession(kind, id)
	p.creationStream(kind).publish(s)
	log.Debugf("Created %s session %s", kind, id)
	return s
}

// End ends the session with status Ended and drops it from enumeration.
func (p *Provider) End(id string) {
	p.finish(id, session.Ended)
}

// Dismiss ends the session with status Dismissed and drops it from
// enumeration.
func (p *Provider) Dismiss(id string) {
	p.finish(id, session.Dismissed)
}

// Forget drops the session from enumeration without any status change,
// as when the process restarts after the OS discarded it.
func (p *Provider) Forget(id string) {
	if s := p.remove(id); s != nil {
		s.closeStreams()
	}
}

func (p *Provider) finish(id string, status session.Status) {
	if s := p.remove(id); s != nil {
		s.End(status)
		log.Debugf("Ended %s session %s (%s)", s.Kind(), id, status)
	}
}

func (p *Provider) remove(id string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byID[id]
	if !ok {
		return nil
	}
	delete(p.byID, id)
	list := p.live[s.Kind()]
	for i, other := range list {
		if other == s {
			p.live[s.Kind()] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return s
}

// Get returns the live session with id.
func (p *Provider) Get(id string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byID[id]
	return s, ok
}

// Sessions lists the live sessions of kind in creation order.
func (p *Provider) Sessions(kind session.Kind) []session.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]session.Session, 0, len(p.live[kind]))
	for _, s := range p.live[kind] {
		out = append(out, s)
	}
	return out
}

// Created streams sessions of kind created after the call.
func (p *Provider) Created(ctx context.Context, kind session.Kind) <-chan session.Session {
	return p.creationStream(kind).subscribe(ctx)
}

func (p *Provider) creationStream(kind session.Kind) *stream[session.Session] {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.creation[kind]
	if !ok {
		st = &stream[session.Session]{}
		p.creation[kind] = st
	}
	return st
}
