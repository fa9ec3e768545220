package persist

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livesync/backend/internal/session"
)

var created = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRecord() Record {
	return Record{
		KindName:     "DeliveryAttributes",
		ID:           "abc",
		CreationDate: created,
		Status:       session.Active,
		PushToken:    []byte{0xde, 0xad},
		UserID:       "u-1",
		Topic:        "topicA",
		Custom:       session.Properties{"string_x": "1"},
	}
}

func TestRecordMarshalJSON(t *testing.T) {
	data, err := json.Marshal(sampleRecord())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, "DeliveryAttributes", fields["attributesTypeName"])
	assert.Equal(t, "abc", fields["id"])
	assert.Equal(t, "2026-03-01T12:00:00.000Z", fields["creationDate"])
	assert.Equal(t, "active", fields["activityState"])
	assert.Equal(t, "dead", fields["pushToken"])
	assert.Equal(t, "u-1", fields["userId"])
	assert.Equal(t, "topicA", fields["topic"])
	// customJson is a string holding a JSON document, not an object.
	assert.Equal(t, `{"string_x":"1"}`, fields["customJson"])
}

func TestRecordMarshalJSONOmitsAbsentFields(t *testing.T) {
	r := sampleRecord()
	r.PushToken = nil
	r.UserID = ""
	r.Custom = nil

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "pushToken")
	assert.NotContains(t, fields, "userId")
	assert.NotContains(t, fields, "customJson")
}

func TestRecordUnmarshalJSON(t *testing.T) {
	input := `{
		"attributesTypeName": "DeliveryAttributes",
		"id": "abc",
		"creationDate": "2026-03-01T12:00:00.000Z",
		"activityState": "stale",
		"pushToken": "beef",
		"topic": "t",
		"customJson": "{\"n\":2,\"nested\":{\"k\":[1,2]}}"
	}`
	var r Record
	require.NoError(t, json.Unmarshal([]byte(input), &r))

	assert.Equal(t, "abc", r.ID)
	assert.True(t, r.CreationDate.Equal(created))
	assert.Equal(t, session.Stale, r.Status)
	assert.Equal(t, []byte{0xbe, 0xef}, r.PushToken)
	assert.Empty(t, r.UserID)
	assert.Equal(t, session.Properties{
		"n":      float64(2),
		"nested": map[string]any{"k": []any{float64(1), float64(2)}},
	}, r.Custom)
}

func TestRecordUnmarshalJSONErrors(t *testing.T) {
	tests := map[string]string{
		"no id":        `{"creationDate":"2026-03-01T12:00:00Z","activityState":"active","topic":"t"}`,
		"bad date":     `{"id":"a","creationDate":"yesterday","activityState":"active","topic":"t"}`,
		"bad token":    `{"id":"a","creationDate":"2026-03-01T12:00:00Z","activityState":"active","pushToken":"zz","topic":"t"}`,
		"bad custom":   `{"id":"a","creationDate":"2026-03-01T12:00:00Z","activityState":"active","topic":"t","customJson":"{"}`,
		"not a record": `[]`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			var r Record
			assert.Error(t, json.Unmarshal([]byte(input), &r))
		})
	}
}

func TestRecordEqual(t *testing.T) {
	base := sampleRecord()

	same := sampleRecord()
	same.Custom = session.Properties{"string_x": "1"}
	assert.True(t, base.Equal(same))

	sameInstant := sampleRecord()
	sameInstant.CreationDate = created.In(time.FixedZone("CET", 3600))
	assert.True(t, base.Equal(sameInstant), "same instant in another zone")

	mutations := map[string]func(r *Record){
		"kind":    func(r *Record) { r.KindName = "Other" },
		"created": func(r *Record) { r.CreationDate = r.CreationDate.Add(time.Millisecond) },
		"status":  func(r *Record) { r.Status = session.Stale },
		"token":   func(r *Record) { r.PushToken = []byte{0xbe, 0xef} },
		"user":    func(r *Record) { r.UserID = "u-2" },
		"topic":   func(r *Record) { r.Topic = "topicB" },
		"custom":  func(r *Record) { r.Custom = session.Properties{"string_x": "2"} },
		"nested":  func(r *Record) { r.Custom = session.Properties{"string_x": "1", "extra": true} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			other := sampleRecord()
			mutate(&other)
			assert.False(t, base.Equal(other))
		})
	}
}

func TestRecordEqualNilCustomMatchesEmpty(t *testing.T) {
	a := sampleRecord()
	a.Custom = nil
	b := sampleRecord()
	b.Custom = session.Properties{}
	assert.True(t, a.Equal(b))
}

func TestNormalizeProperties(t *testing.T) {
	props := session.Properties{
		"count": 3,
		"ratio": float32(0.5),
		"tags":  []string{"a", "b"},
		"deep":  map[string]int{"x": 1},
	}
	got, err := NormalizeProperties(props)
	require.NoError(t, err)
	assert.Equal(t, session.Properties{
		"count": float64(3),
		"ratio": float64(0.5),
		"tags":  []any{"a", "b"},
		"deep":  map[string]any{"x": float64(1)},
	}, got)

	nilProps, err := NormalizeProperties(nil)
	require.NoError(t, err)
	assert.Nil(t, nilProps)

	_, err = NormalizeProperties(session.Properties{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestNormalizedRoundTripIsEqual(t *testing.T) {
	custom, err := NormalizeProperties(session.Properties{"n": 42, "s": "x"})
	require.NoError(t, err)
	r := sampleRecord()
	r.Custom = custom

	data, err := json.Marshal(r)
	require.NoError(t, err)
	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, r.Equal(back))
}
