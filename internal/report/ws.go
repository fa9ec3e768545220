package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/session"
)

const (
	wsMinBackoff   = 500 * time.Millisecond
	wsMaxBackoff   = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// ErrBackoff is returned while a WSSink waits before redialing.
var ErrBackoff = errors.New("collector connection backing off")

// WSSink streams envelopes over one websocket connection. A failed dial
// or write drops the connection; the next dial happens only after an
// exponentially growing delay, and events reported before then fail
// with ErrBackoff.
type WSSink struct {
	url      string
	header   http.Header
	codec    Codec
	identity Identity
	clock    clock.Clock
	dialer   *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	backoff  time.Duration
	nextDial time.Time
	closed   bool
}

// NewWSSink returns a sink for the websocket collector at url. No
// connection is made until the first event.
func NewWSSink(url, token string, codec Codec, ident Identity, c clock.Clock) *WSSink {
	if c == nil {
		c = clock.Real()
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WSSink{
		url:      url,
		header:   header,
		codec:    codec,
		identity: ident,
		clock:    c,
		dialer:   websocket.DefaultDialer,
	}
}

func (s *WSSink) Report(ctx context.Context, event string, props session.Properties) error {
	data, err := s.codec.Encode(NewEnvelope(event, props, s.identity, s.clock.Now()))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if s.conn == nil {
		if err := s.dialLocked(ctx); err != nil {
			return err
		}
	}

	msgType := websocket.TextMessage
	if s.codec == CodecCBOR {
		msgType = websocket.BinaryMessage
	}
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteMessage(msgType, data); err != nil {
		s.conn.Close()
		s.conn = nil
		s.failLocked()
		return fmt.Errorf("writing %s: %w", event, err)
	}
	return nil
}

func (s *WSSink) dialLocked(ctx context.Context) error {
	now := s.clock.Now()
	if now.Before(s.nextDial) {
		return ErrBackoff
	}
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		s.failLocked()
		log.Warningf("Collector %s unreachable, retrying in %s: %v", s.url, s.backoff, err)
		return fmt.Errorf("dialing collector: %w", err)
	}
	log.Infof("Connected to collector %s", s.url)
	s.conn = conn
	s.backoff = 0
	s.nextDial = time.Time{}
	return nil
}

func (s *WSSink) failLocked() {
	if s.backoff == 0 {
		s.backoff = wsMinBackoff
	} else {
		s.backoff *= 2
		if s.backoff > wsMaxBackoff {
			s.backoff = wsMaxBackoff
		}
	}
	s.nextDial = s.clock.Now().Add(s.backoff)
}

// Connected reports whether a connection is currently open.
func (s *WSSink) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *WSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := s.conn.Close()
	s.conn = nil
	return err
}
