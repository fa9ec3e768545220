package mock

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/session"
)

// drain collects all values currently in ch without blocking.
func drain[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func newTestGenerator() (*Generator, *Provider, *clock.FakeClock) {
	p := NewProvider()
	c := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewGenerator(p, c, time.Second), p, c
}

func TestGenerator_SeedAlternatesKinds(t *testing.T) {
	g, p, _ := newTestGenerator()
	g.Seed(4)

	if got := len(p.Sessions(DeliveryKind)); got != 2 {
		t.Errorf("delivery sessions = %d, want 2", got)
	}
	if got := len(p.Sessions(ScoreKind)); got != 2 {
		t.Errorf("score sessions = %d, want 2", got)
	}
	for _, s := range p.Sessions(DeliveryKind) {
		if s.DeliveryToken() != nil {
			t.Errorf("%s has a token before the first tick", s.ID())
		}
		if s.Status() != session.Active {
			t.Errorf("%s status = %s, want active", s.ID(), s.Status())
		}
	}
}

func TestGenerator_TokenArrivesOnFirstTick(t *testing.T) {
	g, p, _ := newTestGenerator()
	g.Seed(1)
	s := p.Sessions(DeliveryKind)[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tokens := s.TokenUpdates(ctx)

	g.Step()

	if s.DeliveryToken() == nil {
		t.Fatal("no token after the first tick")
	}
	if got := len(drain(tokens)); got != 1 {
		t.Errorf("token updates = %d, want 1", got)
	}
}

func TestGenerator_TokenlessNeverGetsToken(t *testing.T) {
	g, p, _ := newTestGenerator()
	g.Seed(5)
	tokenless, ok := p.Get("mock-delivery-5")
	if !ok {
		t.Fatal("mock-delivery-5 not seeded")
	}
	for i := 0; i < 10; i++ {
		g.Step()
	}
	if tokenless.DeliveryToken() != nil {
		t.Error("tokenless session received a token")
	}
}

func TestGenerator_EndedSessionsAreReplaced(t *testing.T) {
	g, p, _ := newTestGenerator()
	g.Seed(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	created := p.Created(ctx, DeliveryKind)

	first := p.Sessions(DeliveryKind)[0].(*Session)
	for i := 0; i < 20; i++ {
		g.Step()
	}

	if first.Status() != session.Ended {
		t.Errorf("first session status = %s, want ended", first.Status())
	}
	if _, ok := p.Get(first.ID()); ok {
		t.Error("ended session is still enumerated")
	}
	if len(drain(created)) == 0 {
		t.Error("no replacement session was announced")
	}
	if got := len(g.Live()); got != 2 {
		t.Errorf("live scripts = %d, want 2", got)
	}
}

func TestGenerator_StartTicksOnClock(t *testing.T) {
	g, p, c := newTestGenerator()
	g.Seed(1)
	s := p.Sessions(DeliveryKind)[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for c.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("generator never waited on the clock")
		}
		time.Sleep(time.Millisecond)
	}
	c.Advance(time.Second)

	for s.DeliveryToken() == nil {
		if time.Now().After(deadline) {
			t.Fatal("tick did not deliver a token")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestExtract(t *testing.T) {
	s := NewSession(DeliveryKind, "o1")
	s.SetAttributes(json.RawMessage(`{"orderId":"o1"}`))
	s.SetContent(json.RawMessage(`{"stage":"preparing","etaMinutes":12,"ratio":0.5,"late":false,"nested":{"x":1}}`))

	topic, props, err := Extract(s)
	if err != nil {
		t.Fatal(err)
	}
	if topic != "order-o1" {
		t.Errorf("topic = %q, want order-o1", topic)
	}
	want := session.Properties{
		"string_stage":   "preparing",
		"int_etaMinutes": int64(12),
		"float_ratio":    0.5,
		"bool_late":      false,
	}
	if len(props) != len(want) {
		t.Fatalf("props = %v, want %v", props, want)
	}
	for k, v := range want {
		if props[k] != v {
			t.Errorf("props[%s] = %v, want %v", k, props[k], v)
		}
	}
}

func TestExtract_Errors(t *testing.T) {
	s := NewSession("Other", "x")
	if _, _, err := Extract(s); err == nil {
		t.Error("unknown kind accepted")
	}

	s = NewSession(ScoreKind, "m1")
	s.SetAttributes(json.RawMessage(`{"matchId":"m1"}`))
	s.SetContent(json.RawMessage(`[1,2]`))
	if _, _, err := Extract(s); err == nil {
		t.Error("non-object content accepted")
	}
}
