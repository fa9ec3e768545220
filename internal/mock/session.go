package mock

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/livesync/backend/internal/session"
)

// Session is a simulated live session. Setters publish on the matching
// update stream; End closes all three streams.
type Session struct {
	id   string
	kind session.Kind

	mu         sync.RWMutex
	status     session.Status
	attributes json.RawMessage
	content    json.RawMessage
	token      []byte
	staleAt    *time.Time
	relevance  *float64

	statusUpdates  stream[session.Status]
	tokenUpdates   stream[[]byte]
	contentUpdates stream[json.RawMessage]
}

// NewSession returns an active session without a token.
func NewSession(kind session.Kind, id string) *Session {
	return &Session{
		id:         id,
		kind:       kind,
		status:     session.Active,
		attributes: json.RawMessage(`{}`),
		content:    json.RawMessage(`{}`),
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Kind() session.Kind { return s.kind }

func (s *Session) Status() session.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Attributes() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attributes
}

func (s *Session) Content() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

func (s *Session) DeliveryToken() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil
	}
	return append([]byte(nil), s.token...)
}

func (s *Session) StaleAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staleAt
}

func (s *Session) RelevanceScore() *float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relevance
}

func (s *Session) StatusUpdates(ctx context.Context) <-chan session.Status {
	return s.statusUpdates.subscribe(ctx)
}

func (s *Session) TokenUpdates(ctx context.Context) <-chan []byte {
	return s.tokenUpdates.subscribe(ctx)
}

func (s *Session) ContentUpdates(ctx context.Context) <-chan json.RawMessage {
	return s.contentUpdates.subscribe(ctx)
}

func (s *Session) SetStatus(status session.Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.statusUpdates.publish(status)
}

// SetToken replaces the delivery token. A nil token clears it.
func (s *Session) SetToken(token []byte) {
	var cp []byte
	if token != nil {
		cp = append([]byte{}, token...)
	}
	s.mu.Lock()
	s.token = cp
	s.mu.Unlock()
	s.tokenUpdates.publish(cp)
}

func (s *Session) SetContent(content json.RawMessage) {
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
	s.contentUpdates.publish(content)
}

// SetAttributes replaces the attributes. Attributes are fixed for a real
// session's lifetime, so no update is published.
func (s *Session) SetAttributes(attributes json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes = attributes
}

// SetStaleAt updates the stale date together with the content, the way
// the OS delivers them.
func (s *Session) SetStaleAt(t *time.Time) {
	s.mu.Lock()
	s.staleAt = t
	content := s.content
	s.mu.Unlock()
	s.contentUpdates.publish(content)
}

func (s *Session) SetRelevance(score *float64) {
	s.mu.Lock()
	s.relevance = score
	content := s.content
	s.mu.Unlock()
	s.contentUpdates.publish(content)
}

// End moves the session to status and closes its update streams.
func (s *Session) End(status session.Status) {
	s.SetStatus(status)
	s.closeStreams()
}

func (s *Session) closeStreams() {
	s.statusUpdates.close()
	s.tokenUpdates.close()
	s.contentUpdates.close()
}

// Subscribers returns the number of open update subscriptions.
func (s *Session) Subscribers() int {
	return s.statusUpdates.count() + s.tokenUpdates.count() + s.contentUpdates.count()
}
