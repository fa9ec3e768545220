package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/session"
)

// Kinds simulated by the Generator.
const (
	DeliveryKind session.Kind = "DeliveryAttributes"
	ScoreKind    session.Kind = "MatchScoreAttributes"
)

const DefaultInterval = 2 * time.Second

type script struct {
	session   *Session
	pattern   string
	tokenAt   int // tick when the first token arrives, 0 = never
	rotateAt  int // token rotation period in ticks, 0 = never
	staleAt   int // tick when the session goes stale, 0 = never
	endAt     int // tick when the session ends
	ended     bool
	step      int
	homeScore int
	awayScore int
}

// Generator drives a Provider through scripted session lifecycles: a
// token arriving some time after creation, token rotation, content
// updates, staleness, and ending or dismissal. Every ended session is
// replaced by a newly created one.
type Generator struct {
	provider *Provider
	clock    clock.Clock
	interval time.Duration
	rng      *rand.Rand

	mu      sync.Mutex
	scripts []*script
	tick    int
}

func NewGenerator(p *Provider, c clock.Clock, interval time.Duration) *Generator {
	if c == nil {
		c = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Generator{
		provider: p,
		clock:    c,
		interval: interval,
		rng:      rand.New(rand.NewSource(c.Now().UnixNano())),
	}
}

// Seed makes n sessions live before any observer starts, alternating
// between the simulated kinds.
func (g *Generator) Seed(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	patterns := []string{"steady", "rotate", "stale", "dismiss", "tokenless"}
	for i := 0; i < n; i++ {
		kind := DeliveryKind
		if i%2 == 1 {
			kind = ScoreKind
		}
		s := g.provider.NewSession(kind, fmt.Sprintf("mock-%s-%d", shortKind(kind), i+1))
		g.scripts = append(g.scripts, g.newScript(s, patterns[i%len(patterns)]))
	}
}

// Start runs the script loop until ctx is done.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.clock.After(g.interval):
			g.Step()
		}
	}
}

// Step advances every script by one tick.
func (g *Generator) Step() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tick++
	var replacements []*script
	for _, sc := range g.scripts {
		if sc.ended {
			continue
		}
		g.advance(sc)
		if sc.ended {
			replacements = append(replacements, g.replace(sc))
		}
	}
	live := g.scripts[:0]
	for _, sc := range g.scripts {
		if !sc.ended {
			live = append(live, sc)
		}
	}
	g.scripts = append(live, replacements...)
}

// Live returns the ids of the sessions the generator still drives.
func (g *Generator) Live() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.scripts))
	for _, sc := range g.scripts {
		ids = append(ids, sc.session.ID())
	}
	return ids
}

func (g *Generator) newScript(s *Session, pattern string) *script {
	sc := &script{session: s, pattern: pattern, tokenAt: 1, endAt: 12 + g.rng.Intn(6)}
	switch pattern {
	case "rotate":
		sc.rotateAt = 4
	case "stale":
		sc.staleAt = sc.endAt - 3
	case "tokenless":
		sc.tokenAt = 0
	}
	s.SetAttributes(attributesFor(s.Kind(), s.ID()))
	s.SetContent(g.contentFor(sc))
	return sc
}

func (g *Generator) replace(old *script) *script {
	kind := old.session.Kind()
	id := uuid.NewString()
	s := g.provider.Create(kind, id)
	return g.newScript(s, old.pattern)
}

func (g *Generator) advance(sc *script) {
	sc.step++
	s := sc.session

	if sc.step == sc.tokenAt {
		s.SetToken(g.token())
	}
	if sc.rotateAt > 0 && sc.step > sc.tokenAt && sc.step%sc.rotateAt == 0 {
		s.SetToken(g.token())
	}
	if sc.staleAt > 0 && sc.step == sc.staleAt {
		at := g.clock.Now()
		s.SetStaleAt(&at)
		s.SetStatus(session.Stale)
	}

	if sc.step >= sc.endAt {
		sc.ended = true
		if sc.pattern == "dismiss" {
			g.provider.Dismiss(s.ID())
		} else {
			g.provider.End(s.ID())
		}
		return
	}

	if s.Kind() == ScoreKind && g.rng.Intn(3) == 0 {
		if g.rng.Intn(2) == 0 {
			sc.homeScore++
		} else {
			sc.awayScore++
		}
	}
	s.SetContent(g.contentFor(sc))
	score := float64(sc.step) / float64(sc.endAt)
	s.SetRelevance(&score)
}

func (g *Generator) token() []byte {
	b := make([]byte, 32)
	g.rng.Read(b)
	return b
}

var deliveryStages = []string{"confirmed", "preparing", "picked_up", "on_the_way", "arriving"}

func (g *Generator) contentFor(sc *script) json.RawMessage {
	var v any
	switch sc.session.Kind() {
	case DeliveryKind:
		stage := deliveryStages[min(sc.step*len(deliveryStages)/max(sc.endAt, 1), len(deliveryStages)-1)]
		v = map[string]any{
			"stage":      stage,
			"etaMinutes": max(sc.endAt-sc.step, 0) * 3,
		}
	default:
		v = map[string]any{
			"home":   sc.homeScore,
			"away":   sc.awayScore,
			"minute": sc.step * 7,
			"live":   true,
		}
	}
	data, _ := json.Marshal(v)
	return data
}

func attributesFor(kind session.Kind, id string) json.RawMessage {
	var v any
	switch kind {
	case DeliveryKind:
		v = map[string]string{"orderId": id, "restaurant": "Gopher Diner"}
	default:
		v = map[string]string{"matchId": id, "homeTeam": "Lyon", "awayTeam": "Nantes"}
	}
	data, _ := json.Marshal(v)
	return data
}

func shortKind(kind session.Kind) string {
	if kind == DeliveryKind {
		return "delivery"
	}
	return "score"
}
