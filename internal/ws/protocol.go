package ws

import (
	"time"

	"github.com/livesync/backend/internal/monitor"
	"github.com/livesync/backend/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgEvent    MessageType = "event"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is sent on connect and then periodically.
type SnapshotPayload struct {
	Sessions []*session.Tracked  `json:"sessions"`
	Events   []EventPayload      `json:"events"`
	Health   []monitor.KindHealth `json:"health,omitempty"`
}

// EventPayload is one report as seen by the tap, after masking.
type EventPayload struct {
	Seq        uint64             `json:"seq"`
	Event      string             `json:"event"`
	Properties session.Properties `json:"properties"`
	At         time.Time          `json:"at"`
}
