package session

import (
	"sort"
	"sync"
	"time"
)

// Tracked is the in-memory view of a session under observation.
type Tracked struct {
	Snapshot
	ObservedAt  time.Time `json:"observedAt"`
	LastEvent   string    `json:"lastEvent"`
	LastEventAt time.Time `json:"lastEventAt"`
	Passes      int       `json:"passes"`
}

// Store is the process-local table of sessions currently observed. It
// is never persisted; the durable per-session record lives in the
// persist package.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Tracked
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Tracked),
	}
}

// Add starts tracking id. It returns false when id is already tracked,
// which callers use to make re-observation idempotent.
func (s *Store) Add(id string, kind Kind, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return false
	}
	s.sessions[id] = &Tracked{
		Snapshot:   Snapshot{ID: id, Kind: kind},
		ObservedAt: at,
	}
	return true
}

// Touch records a reconcile trigger and the snapshot it observed. It is
// a no-op for untracked ids.
func (s *Store) Touch(ev Event, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[ev.SessionID]
	if !ok {
		return
	}
	observedAt, passes := st.ObservedAt, st.Passes
	snap.Token = nil
	st.Snapshot = snap
	st.ObservedAt = observedAt
	st.LastEvent = ev.Type.String()
	st.LastEventAt = ev.At
	st.Passes = passes + 1
}

func (s *Store) Get(id string) (*Tracked, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	copy := *st
	return &copy, true
}

// GetAll returns copies of every tracked session ordered by id.
func (s *Store) GetAll() []*Tracked {
	s.mu.RLock()
	result := make([]*Tracked, 0, len(s.sessions))
	for _, st := range s.sessions {
		copy := *st
		result = append(result, &copy)
	}
	s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of tracked sessions of kind, or of every
// kind when kind is empty.
func (s *Store) Count(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kind == "" {
		return len(s.sessions)
	}
	n := 0
	for _, st := range s.sessions {
		if st.Kind == kind {
			n++
		}
	}
	return n
}
