package mock

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/livesync/backend/internal/session"
)

// Extract is the extractor for the simulated kinds. The topic is built
// from the attributes and the content fields become typed properties.
func Extract(s session.Session) (string, session.Properties, error) {
	var attrs map[string]string
	if err := json.Unmarshal(s.Attributes(), &attrs); err != nil {
		return "", nil, fmt.Errorf("attributes: %w", err)
	}
	var topic string
	switch s.Kind() {
	case DeliveryKind:
		topic = "order-" + attrs["orderId"]
	case ScoreKind:
		topic = "match-" + attrs["matchId"]
	default:
		return "", nil, fmt.Errorf("unknown kind %s", s.Kind())
	}
	props, err := TypedProperties(s.Content())
	if err != nil {
		return "", nil, err
	}
	return topic, props, nil
}

// TypedProperties flattens a JSON object into properties whose names
// carry the value type: string_, bool_, int_ or float_. Nested values
// are skipped.
func TypedProperties(content json.RawMessage) (session.Properties, error) {
	var fields map[string]any
	if err := json.Unmarshal(content, &fields); err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	props := make(session.Properties, len(fields))
	for k, raw := range fields {
		switch v := raw.(type) {
		case string:
			props["string_"+k] = v
		case bool:
			props["bool_"+k] = v
		case float64:
			if v == math.Trunc(v) {
				props["int_"+k] = int64(v)
			} else {
				props["float_"+k] = v
			}
		}
	}
	return props, nil
}
