package reconcile

import (
	"encoding/hex"
	"time"

	"github.com/livesync/backend/internal/persist"
	"github.com/livesync/backend/internal/session"
)

// Standard report property keys.
const (
	PropID         = session.PropID
	PropTopic      = session.PropTopic
	PropPushToken  = session.PropPushToken
	PropExpiration = session.PropExpiration
)

// DefaultExpiration is added to a record's creation date to form the
// expiration sent with every upsert.
const DefaultExpiration = 8 * time.Hour

// UpsertProperties builds the properties of an upsert for r. Custom
// properties come first and the standard keys overwrite them. The topic
// is not sent on upserts.
func UpsertProperties(r persist.Record, expiration time.Duration) session.Properties {
	props := make(session.Properties, len(r.Custom)+3)
	for k, v := range r.Custom {
		props[k] = v
	}
	delete(props, PropTopic)
	props[PropID] = r.ID
	props[PropPushToken] = hex.EncodeToString(r.PushToken)
	props[PropExpiration] = persist.FormatTime(r.CreationDate.Add(expiration))
	return props
}

// RemovalProperties builds the properties of a removal for r: a null
// token and an expiration of 0 tell the collector to drop the session
// immediately.
func RemovalProperties(r persist.Record) session.Properties {
	return session.Properties{
		PropID:         r.ID,
		PropTopic:      r.Topic,
		PropPushToken:  nil,
		PropExpiration: 0,
	}
}
