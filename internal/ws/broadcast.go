package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/op/go-logging"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/monitor"
	"github.com/livesync/backend/internal/session"
)

var log = logging.MustGetLogger("ws")

// ErrTooManyConnections is returned by AddClient when the connection
// limit is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const writeWait = 10 * time.Second

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster is a report tap: every event reported to it is masked,
// kept in a ring of recent events and pushed to the connected websocket
// clients.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int

	tracked *session.Store
	privacy *session.PrivacyFilter
	clock   clock.Clock

	recentMu  sync.Mutex
	recent    []EventPayload
	recentCap int
	seq       uint64

	healthHook func() []monitor.KindHealth

	snapshotTicker *time.Ticker
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewBroadcaster returns a tap keeping recentCap events. A positive
// snapshotInterval pushes a full snapshot to every client at that
// period. maxConns of 0 means unlimited.
func NewBroadcaster(tracked *session.Store, privacy *session.PrivacyFilter, recentCap int, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	if privacy == nil {
		privacy = &session.PrivacyFilter{}
	}
	if tracked == nil {
		tracked = session.NewStore()
	}
	b := &Broadcaster{
		clients:   make(map[*client]bool),
		maxConns:  maxConns,
		tracked:   tracked,
		privacy:   privacy,
		clock:     clock.Real(),
		recentCap: recentCap,
		stopCh:    make(chan struct{}),
	}
	if snapshotInterval > 0 {
		b.snapshotTicker = time.NewTicker(snapshotInterval)
		go b.snapshotLoop()
	}
	return b
}

// SetHealthHook sets the source of the health section of snapshots.
// Must be called before clients connect.
func (b *Broadcaster) SetHealthHook(fn func() []monitor.KindHealth) {
	b.healthHook = fn
}

// Report implements report.Reporter.
func (b *Broadcaster) Report(_ context.Context, event string, props session.Properties) error {
	b.recentMu.Lock()
	b.seq++
	payload := EventPayload{
		Seq:        b.seq,
		Event:      event,
		Properties: b.privacy.Apply(props),
		At:         b.clock.Now(),
	}
	if b.recentCap > 0 {
		b.recent = append(b.recent, payload)
		if len(b.recent) > b.recentCap {
			b.recent = append([]EventPayload(nil), b.recent[len(b.recent)-b.recentCap:]...)
		}
	}
	b.recentMu.Unlock()

	b.broadcast(WSMessage{Type: MsgEvent, Payload: payload})
	return nil
}

// Recent returns the retained events, oldest first.
func (b *Broadcaster) Recent() []EventPayload {
	b.recentMu.Lock()
	defer b.recentMu.Unlock()
	out := make([]EventPayload, len(b.recent))
	copy(out, b.recent)
	return out
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, 64),
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	data, err := json.Marshal(b.snapshot())
	if err == nil {
		c.send <- data
	}
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// FilterSessions drops sessions of kinds hidden by the privacy filter
// and masks the ids of the rest.
func (b *Broadcaster) FilterSessions(sessions []*session.Tracked) []*session.Tracked {
	out := make([]*session.Tracked, 0, len(sessions))
	for _, s := range sessions {
		if !b.privacy.IsAllowed(s.Kind) {
			continue
		}
		cp := *s
		cp.ID = b.privacy.MaskID(s.ID)
		out = append(out, &cp)
	}
	return out
}

// FilterHealth drops kinds hidden by the privacy filter.
func (b *Broadcaster) FilterHealth(health []monitor.KindHealth) []monitor.KindHealth {
	out := make([]monitor.KindHealth, 0, len(health))
	for _, h := range health {
		if b.privacy.IsAllowed(h.Kind) {
			out = append(out, h)
		}
	}
	return out
}

func (b *Broadcaster) snapshot() WSMessage {
	payload := SnapshotPayload{
		Sessions: b.FilterSessions(b.tracked.GetAll()),
		Events:   b.Recent(),
	}
	if b.healthHook != nil {
		payload.Health = b.FilterHealth(b.healthHook())
	}
	return WSMessage{Type: MsgSnapshot, Payload: payload}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stopCh:
			return
		case <-b.snapshotTicker.C:
			if b.ClientCount() > 0 {
				b.broadcast(b.snapshot())
			}
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("broadcast marshal error: %v", err)
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		// Client can't keep up, disconnect it
		log.Warning("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop ends the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		if b.snapshotTicker != nil {
			b.snapshotTicker.Stop()
		}
		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}
