package persist

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/op/go-logging"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/settings"
)

var log = logging.MustGetLogger("persist")

const (
	// DefaultKey is the settings key holding the records document.
	DefaultKey = "__wonderpush_persistedActivityStates"

	// DefaultRetention bounds how long a record may outlive its session
	// without being cleaned up explicitly.
	DefaultRetention = 8 * time.Hour
)

// Store is the durable, crash-surviving mapping of session id to Record.
//
// Absent or corrupt storage reads as an empty mapping. The retention
// horizon applies to the first successful read only: records left over
// from an earlier process whose CreationDate is older than the horizon
// are hidden from then on and dropped by the next write. Records this
// Store has seen never expire while it is in use.
type Store struct {
	mu        sync.Mutex
	kv        settings.Store
	key       string
	clock     clock.Clock
	retention time.Duration

	loaded  bool
	expired map[string]bool // dropped on first read, still in storage
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithClock sets the clock used for the retention horizon.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithRetention overrides DefaultRetention. Zero disables expiry.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

func New(kv settings.Store, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		key:       DefaultKey,
		clock:     clock.Real(),
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retention returns the configured retention horizon.
func (s *Store) Retention() time.Duration { return s.retention }

// Load returns the effective mapping.
func (s *Store) Load() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Get returns the record for id, if any.
func (s *Store) Get(id string) (Record, bool) {
	r, ok := s.Load()[id]
	return r, ok
}

// Save replaces the whole mapping.
func (s *Store) Save(records map[string]Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(records)
}

// Update runs fn on the current mapping and saves the result. No other
// Load, Save or Update interleaves between the read and the write. fn
// may add, replace and delete entries in place.
func (s *Store) Update(fn func(records map[string]Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.loadLocked()
	fn(records)
	return s.saveLocked(records)
}

// IDsByKind groups the ids of the effective mapping by kind name. Ids
// are sorted for stable iteration.
func (s *Store) IDsByKind() map[string][]string {
	out := make(map[string][]string)
	for id, r := range s.Load() {
		out[r.KindName] = append(out[r.KindName], id)
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}

// Clear deletes the stored document.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(s.key); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	s.expired = nil
	return nil
}

func (s *Store) loadLocked() map[string]Record {
	records := make(map[string]Record)

	data, ok, err := s.kv.Get(s.key)
	if err != nil {
		log.Warningf("Reading persisted records failed, starting empty: %v", err)
		return records
	}
	if !ok || len(data) == 0 {
		s.loaded = true
		return records
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warningf("Persisted records are corrupt, starting empty: %v", err)
		return records
	}

	var earliest time.Time
	if !s.loaded && s.retention > 0 {
		earliest = s.clock.Now().Add(-s.retention)
	}
	for id, entry := range raw {
		if s.expired[id] {
			continue
		}
		var r Record
		if err := json.Unmarshal(entry, &r); err != nil {
			log.Warningf("Dropping unreadable record %s: %v", id, err)
			continue
		}
		if !earliest.IsZero() && !r.CreationDate.After(earliest) {
			log.Debugf("Dropping expired record %s created %s", id, FormatTime(r.CreationDate))
			if s.expired == nil {
				s.expired = make(map[string]bool)
			}
			s.expired[id] = true
			continue
		}
		records[id] = r
	}
	s.loaded = true
	return records
}

func (s *Store) saveLocked(records map[string]Record) error {
	if records == nil {
		records = map[string]Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	if err := s.kv.Set(s.key, data); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	s.expired = nil
	return nil
}
