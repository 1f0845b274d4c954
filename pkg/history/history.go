// Package history keeps the most recent committed searches.
package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rubiojr/yatra/pkg/log"
)

const (
	// Key is where the entries are persisted, as a JSON array of strings.
	Key          = "search_history"
	DefaultLimit = 10
)

// KV is the persistence backend.
type KV interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Store holds deduplicated entries, most recent first. Entries compare
// case-insensitively; re-committing an entry moves it to the front with the
// new spelling.
type Store struct {
	kv    KV
	limit int
	log   *log.Logger

	mu      sync.Mutex
	entries []string
}

// New loads the persisted history. Unreadable stored data is logged and
// discarded; backend errors are returned.
func New(kv KV, limit int) (*Store, error) {
	if kv == nil {
		kv = NewMemoryKV()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	s := &Store{kv: kv, limit: limit, log: log.For("history")}

	data, ok, err := kv.Get(Key)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if !ok {
		return s, nil
	}

	var stored []string
	if err := json.Unmarshal(data, &stored); err != nil {
		s.log.Warnf("ignoring corrupt history: %v", err)
		return s, nil
	}
	// Replay oldest first so the most recent spelling of a duplicate wins.
	for i := len(stored) - 1; i >= 0; i-- {
		s.entries = pushFront(s.entries, stored[i], s.limit)
	}
	return s, nil
}

// Commit records a search. Blank entries are ignored. The entry stays in
// memory even if persisting fails.
func (s *Store) Commit(entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = pushFront(s.entries, entry, s.limit)
	return s.persistLocked()
}

// Remove deletes an entry, matched case-insensitively.
func (s *Store) Remove(entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.entries[:0]
	removed := false
	for _, e := range s.entries {
		if strings.EqualFold(e, strings.TrimSpace(entry)) {
			removed = true
			continue
		}
		out = append(out, e)
	}
	s.entries = out
	if !removed {
		return nil
	}
	return s.persistLocked()
}

// Clear forgets every entry and drops the persisted key.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	if err := s.kv.Delete(Key); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Entries returns every entry, most recent first.
func (s *Store) Entries() []string {
	return s.Recent(s.limit)
}

// Recent returns at most n entries, most recent first.
func (s *Store) Recent(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.entries) {
		n = len(s.entries)
	}
	if n <= 0 {
		return []string{}
	}
	return append([]string(nil), s.entries[:n]...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) persistLocked() error {
	entries := s.entries
	if entries == nil {
		entries = []string{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := s.kv.Set(Key, data); err != nil {
		s.log.Warnf("persisting history: %v", err)
		return fmt.Errorf("persisting history: %w", err)
	}
	return nil
}

func pushFront(entries []string, entry string, limit int) []string {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return entries
	}
	out := make([]string, 0, len(entries)+1)
	out = append(out, entry)
	for _, e := range entries {
		if !strings.EqualFold(e, entry) {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MemoryKV is an in-process KV.
type MemoryKV struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
	return nil
}
