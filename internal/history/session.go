package history

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
)

// DefaultMaxBackAndForth is how many user/assistant exchanges a session keeps.
const DefaultMaxBackAndForth = 5

// Manager creates and ends sessions on top of a Store.
type Manager struct {
	store Store
	limit int
}

// NewManager bounds every session to maxBackAndForth*2 messages.
func NewManager(store Store, maxBackAndForth int) *Manager {
	if maxBackAndForth <= 0 {
		maxBackAndForth = DefaultMaxBackAndForth
	}
	return &Manager{store: store, limit: maxBackAndForth * 2}
}

// Limit is the number of messages a session retains.
func (m *Manager) Limit() int { return m.limit }

// NewSession starts an empty conversation under a fresh id.
func (m *Manager) NewSession() (*Session, error) {
	id := uuid.NewString()
	if err := m.store.Create(id); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Session{ID: id, store: m.store, limit: m.limit}, nil
}

// Session resumes an existing conversation.
func (m *Manager) Session(id string) (*Session, error) {
	ok, err := m.store.Exists(id)
	if err != nil {
		return nil, fmt.Errorf("look up session: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &Session{ID: id, store: m.store, limit: m.limit}, nil
}

// EndSession discards a conversation.
func (m *Manager) EndSession(id string) error {
	return m.store.Delete(id)
}

// Session is a handle on one conversation window. Handles are cheap; the
// window itself lives in the store.
type Session struct {
	ID    string
	store Store
	limit int
}

func (s *Session) AddUserMessage(text string) error {
	return s.store.Append(s.ID, s.limit, protocol.UserMessage(text))
}

func (s *Session) AddAssistantMessage(text string) error {
	return s.store.Append(s.ID, s.limit, protocol.AssistantMessage(text))
}

// AddExchange appends a user message and its reply under one lock so no other
// turn can interleave between them.
func (s *Session) AddExchange(user, assistant string) error {
	msgs := []protocol.Message{protocol.UserMessage(user)}
	if assistant != "" {
		msgs = append(msgs, protocol.AssistantMessage(assistant))
	}
	return s.store.Append(s.ID, s.limit, msgs...)
}

// Snapshot returns a copy of the window, oldest first.
func (s *Session) Snapshot() ([]protocol.Message, error) {
	return s.store.Snapshot(s.ID)
}
