package persist

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/livesync/backend/internal/session"
)

// TimeLayout is the ISO-8601 layout used for persisted dates and report
// expirations.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Record is what was last reported for one session id.
//
// CreationDate and UserID are fixed when the record is first created and
// carried over by every later update of the same session.
type Record struct {
	KindName     string
	ID           string
	CreationDate time.Time
	Status       session.Status
	PushToken    []byte
	UserID       string
	Topic        string
	Custom       session.Properties
}

type recordJSON struct {
	AttributesTypeName string         `json:"attributesTypeName"`
	ID                 string         `json:"id"`
	CreationDate       string         `json:"creationDate"`
	ActivityState      session.Status `json:"activityState"`
	PushToken          string         `json:"pushToken,omitempty"`
	UserID             string         `json:"userId,omitempty"`
	Topic              string         `json:"topic"`
	CustomJSON         *string        `json:"customJson,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		AttributesTypeName: r.KindName,
		ID:                 r.ID,
		CreationDate:       FormatTime(r.CreationDate),
		ActivityState:      r.Status,
		UserID:             r.UserID,
		Topic:              r.Topic,
	}
	if r.PushToken != nil {
		out.PushToken = hex.EncodeToString(r.PushToken)
	}
	if r.Custom != nil {
		data, err := json.Marshal(r.Custom)
		if err != nil {
			return nil, fmt.Errorf("encoding custom properties of %s: %w", r.ID, err)
		}
		s := string(data)
		out.CustomJSON = &s
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.ID == "" {
		return fmt.Errorf("record without id")
	}
	created, err := time.Parse(time.RFC3339Nano, in.CreationDate)
	if err != nil {
		return fmt.Errorf("record %s: creationDate: %w", in.ID, err)
	}
	var token []byte
	if in.PushToken != "" {
		token, err = hex.DecodeString(in.PushToken)
		if err != nil {
			return fmt.Errorf("record %s: pushToken: %w", in.ID, err)
		}
	}
	var custom session.Properties
	if in.CustomJSON != nil {
		if err := json.Unmarshal([]byte(*in.CustomJSON), &custom); err != nil {
			return fmt.Errorf("record %s: customJson: %w", in.ID, err)
		}
		if custom == nil {
			custom = session.Properties{}
		}
	}
	*r = Record{
		KindName:     in.AttributesTypeName,
		ID:           in.ID,
		CreationDate: created,
		Status:       in.ActivityState,
		PushToken:    token,
		UserID:       in.UserID,
		Topic:        in.Topic,
		Custom:       custom,
	}
	return nil
}

// Equal reports whether r and o are field-for-field identical, comparing
// Custom deeply. A nil Custom equals an empty one.
func (r Record) Equal(o Record) bool {
	return r.KindName == o.KindName &&
		r.ID == o.ID &&
		r.CreationDate.Equal(o.CreationDate) &&
		r.Status == o.Status &&
		bytes.Equal(r.PushToken, o.PushToken) &&
		r.UserID == o.UserID &&
		r.Topic == o.Topic &&
		propertiesEqual(r.Custom, o.Custom)
}

func propertiesEqual(a, b session.Properties) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// NormalizeProperties returns props as it will read back from the store:
// a JSON round trip turns every number into float64 and every nested
// value into maps and slices of the JSON kinds. Comparing a normalized
// bag with a loaded one is therefore meaningful. A value that cannot be
// encoded is reported as an error.
func NormalizeProperties(props session.Properties) (session.Properties, error) {
	if props == nil {
		return nil, nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	var out session.Properties
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = session.Properties{}
	}
	return out, nil
}
