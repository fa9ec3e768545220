package session

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Kind names a live-session schema: the fixed attribute set plus the
// evolving content a session of this kind carries. At most one observer
// runs per Kind.
type Kind string

// KindOf derives a Kind from the Go type of v, dereferencing pointers.
// Two values of the same named type always yield the same Kind.
func KindOf(v any) Kind {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return Kind(t.Name())
	}
	return Kind(t.String())
}

func (k Kind) String() string { return string(k) }

// Properties is a free-form property bag sent along with reports.
type Properties map[string]any

// Clone returns a shallow copy of p. A nil bag stays nil.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	c := make(Properties, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Session is a handle to one OS-managed live session. The engine only
// reads it; the OS owns its lifetime.
//
// The three update subscriptions each return a channel that delivers
// one value per change and is closed when the session's stream ends or
// ctx is cancelled. A value is a trigger to re-read the session, so an
// implementation may coalesce updates when a subscriber falls behind.
type Session interface {
	ID() string
	Kind() Kind
	Status() Status
	Attributes() json.RawMessage
	Content() json.RawMessage
	// DeliveryToken returns nil until the OS has issued a token.
	DeliveryToken() []byte
	StaleAt() *time.Time
	RelevanceScore() *float64

	StatusUpdates(ctx context.Context) <-chan Status
	TokenUpdates(ctx context.Context) <-chan []byte
	ContentUpdates(ctx context.Context) <-chan json.RawMessage
}

// Extractor maps a session to the routing topic and the custom
// properties reported for it. It must be pure: the engine calls it any
// number of times for the same session.
type Extractor func(s Session) (topic string, props Properties, err error)

// Snapshot is a point-in-time copy of the observable fields of a session.
type Snapshot struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	Status         Status          `json:"status"`
	Content        json.RawMessage `json:"content,omitempty"`
	Token          []byte          `json:"-"`
	HasToken       bool            `json:"hasToken"`
	StaleAt        *time.Time      `json:"staleAt,omitempty"`
	RelevanceScore *float64        `json:"relevanceScore,omitempty"`
}

// Snap reads every observable field of s once.
func Snap(s Session) Snapshot {
	token := s.DeliveryToken()
	return Snapshot{
		ID:             s.ID(),
		Kind:           s.Kind(),
		Status:         s.Status(),
		Content:        s.Content(),
		Token:          token,
		HasToken:       token != nil,
		StaleAt:        s.StaleAt(),
		RelevanceScore: s.RelevanceScore(),
	}
}

// Reportable reports whether the snapshot is eligible for
// synchronization: active with a delivery token.
func (s Snapshot) Reportable() bool {
	return s.Status == Active && s.Token != nil
}

// Describe returns a one-line description suitable for debug logs. The
// token itself is never included.
func (s Snapshot) Describe() string {
	stale := "none"
	if s.StaleAt != nil {
		stale = s.StaleAt.UTC().Format(time.RFC3339)
	}
	relevance := "none"
	if s.RelevanceScore != nil {
		relevance = fmt.Sprintf("%g", *s.RelevanceScore)
	}
	token := "none"
	if s.HasToken {
		token = "present"
	}
	return fmt.Sprintf("Session<%s>(id: %s, status: %s, staleAt: %s, relevance: %s, token: %s)",
		s.Kind, s.ID, s.Status, stale, relevance, token)
}
