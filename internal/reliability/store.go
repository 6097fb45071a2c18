package reliability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PersistenceError wraps any failure to read or write reliability history.
// Callers log it and continue; history loss degrades ranking quality but
// never tool execution.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("reliability store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is the durable backend for reliability events.
type Store interface {
	Append(ev Event) error
	Load() ([]Event, error)
	// Replace atomically swaps the full history for the given events.
	Replace(events []Event) error
	Close() error
}

// FileStore persists events as one JSON object per line, appended in
// arrival order.
type FileStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &PersistenceError{Op: "open", Err: err}
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	return &FileStore{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

func (s *FileStore) Append(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return &PersistenceError{Op: "append", Err: os.ErrClosed}
	}
	if err := s.enc.Encode(ev); err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// Load reads the whole history. A missing file yields an empty history;
// lines that fail to parse (a torn write at the tail, hand edits) are
// skipped rather than aborting the reload.
func (s *FileStore) Load() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Tool == "" {
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return events, &PersistenceError{Op: "load", Err: err}
	}
	return events, nil
}

// Replace rewrites the file through a temp-and-rename so readers never see
// a half-written history.
func (s *FileStore) Replace(events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &PersistenceError{Op: "replace", Err: err}
	}
	enc := json.NewEncoder(f)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			f.Close()
			os.Remove(tmp)
			return &PersistenceError{Op: "replace", Err: err}
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Op: "replace", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Op: "replace", Err: err}
	}

	if s.f != nil {
		s.f.Close()
	}
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.f = nil
		s.enc = nil
		return &PersistenceError{Op: "replace", Err: err}
	}
	s.f = nf
	s.enc = json.NewEncoder(nf)
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.enc = nil
	if err != nil {
		return &PersistenceError{Op: "close", Err: err}
	}
	return nil
}
