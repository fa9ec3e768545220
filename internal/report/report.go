// Package report delivers synchronization events to a remote collector.
//
// Every sink implements Reporter. Delivery is best-effort: a sink returns
// the error of its one attempt and never retries. Async turns any sink
// into a fire-and-forget queue.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"

	"github.com/livesync/backend/internal/session"
)

var log = logging.MustGetLogger("report")

// EventName is the event shared by upserts and removals.
const EventName = "NewLiveActivity"

// Reporter emits one named event with its properties.
type Reporter interface {
	Report(ctx context.Context, event string, props session.Properties) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, event string, props session.Properties) error

func (f ReporterFunc) Report(ctx context.Context, event string, props session.Properties) error {
	return f(ctx, event, props)
}

// Identity supplies the installation and user the events are attributed to.
type Identity interface {
	InstallationID() string
	UserID() string
}

// Envelope is the wire form of one event for the transport sinks.
type Envelope struct {
	ID             string             `json:"id" cbor:"id"`
	Type           string             `json:"type" cbor:"type"`
	InstallationID string             `json:"installationId,omitempty" cbor:"installationId,omitempty"`
	UserID         string             `json:"userId,omitempty" cbor:"userId,omitempty"`
	CreatedAt      time.Time          `json:"createdAt" cbor:"createdAt"`
	Custom         session.Properties `json:"custom" cbor:"custom"`
}

// NewEnvelope wraps an event with a fresh id. ident may be nil.
func NewEnvelope(event string, props session.Properties, ident Identity, now time.Time) Envelope {
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      event,
		CreatedAt: now.UTC(),
		Custom:    props,
	}
	if env.Custom == nil {
		env.Custom = session.Properties{}
	}
	if ident != nil {
		env.InstallationID = ident.InstallationID()
		env.UserID = ident.UserID()
	}
	return env
}
