// Package history keeps the bounded per-session conversation window the
// assistant sends to the model.
package history

import (
	"errors"
	"sync"

	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
)

// ErrSessionNotFound means no conversation exists under the given id.
var ErrSessionNotFound = errors.New("session not found")

// Store persists conversation windows. Implementations serialize every
// mutation and read behind one lock.
type Store interface {
	Create(sessionID string) error
	Exists(sessionID string) (bool, error)
	// Append adds messages in order and evicts the oldest entries until at
	// most limit remain.
	Append(sessionID string, limit int, msgs ...protocol.Message) error
	Snapshot(sessionID string) ([]protocol.Message, error)
	Delete(sessionID string) error
	Close() error
}

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]protocol.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]protocol.Message)}
}

func (s *MemoryStore) Create(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[sessionID]; !ok {
		s.windows[sessionID] = []protocol.Message{}
	}
	return nil
}

func (s *MemoryStore) Exists(sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.windows[sessionID]
	return ok, nil
}

func (s *MemoryStore) Append(sessionID string, limit int, msgs ...protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.windows[sessionID] = bound(append(w, msgs...), limit)
	return nil
}

func (s *MemoryStore) Snapshot(sessionID string) ([]protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]protocol.Message, len(w))
	copy(out, w)
	return out, nil
}

func (s *MemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.windows, sessionID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// bound drops the oldest messages so at most limit remain.
func bound(w []protocol.Message, limit int) []protocol.Message {
	if limit <= 0 || len(w) <= limit {
		return w
	}
	return append([]protocol.Message(nil), w[len(w)-limit:]...)
}
