package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	settingsFileName = "settings.json"
	appDirName       = "livesync"
)

// FileStore keeps all keys in a single JSON object file:
//
//	{"<key>": <value as JSON string>, ...}
//
// Values are stored as strings so that any byte payload (normally a JSON
// document) survives untouched. Every write rewrites the whole file
// through a temp file and rename, so a crash leaves either the old or
// the new document on disk.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	closed bool
}

// NewFileStore creates a FileStore in dir. The directory is created on
// the first write. Pass an empty string to use the default XDG state
// path.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStore{dir: dir}
}

// Path returns the full path to the settings file.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, settingsFileName)
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	doc, err := s.read()
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	doc, err := s.read()
	if err != nil {
		// An unreadable document is replaced rather than blocking every
		// future write.
		doc = make(map[string]string)
	}
	doc[key] = string(value)
	return s.write(doc)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	doc, err := s.read()
	if err != nil {
		doc = make(map[string]string)
	}
	if _, ok := doc[key]; !ok && err == nil {
		return nil
	}
	delete(doc, key)
	return s.write(doc)
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// read loads the document. A missing file is an empty document.
func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	doc := make(map[string]string)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return doc, nil
}

// write stores doc using an atomic temp-file-then-rename pattern.
func (s *FileStore) write(doc map[string]string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming settings file: %w", err)
	}
	committed = true

	return nil
}

// DefaultDir returns ~/.local/state/livesync, respecting XDG_STATE_HOME
// if set.
func DefaultDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
