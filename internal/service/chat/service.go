package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/pdf-chat/backend/internal/model/chat"
)

var (
	ErrSessionRequired = errors.New("session id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrInvalidRole     = errors.New("invalid message role")
)

// Store keeps conversation transcripts keyed by session id.
type Store interface {
	CreateSession(ctx context.Context, sessionID string) (chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	Append(ctx context.Context, message chat.Message) (chat.Message, error)
	LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error)
	Rebind(ctx context.Context, oldID, newID string) error
	Reset(ctx context.Context, sessionID string) error
	Close() error
}

// EnsureSession returns the session, creating it (seeded with the system
// prompt) on first use.
func EnsureSession(ctx context.Context, store Store, sessionID string) (chat.Session, error) {
	session, err := store.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return chat.Session{}, err
	}

	session, err = store.CreateSession(ctx, sessionID)
	if errors.Is(err, ErrSessionExists) {
		return store.GetSession(ctx, sessionID)
	}
	return session, err
}

// MemoryStore encapsulates conversation state in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

// CreateSession provisions a session. An empty id gets a fresh uuid.
func (s *MemoryStore) CreateSession(_ context.Context, sessionID string) (chat.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := time.Now().UTC()
	session := chat.Session{ID: sessionID, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return chat.Session{}, ErrSessionExists
	}
	s.sessions[sessionID] = session
	s.messages[sessionID] = append(make([]chat.Message, 0, 16), seedMessage(sessionID, now))
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Append adds a message to the session history.
func (s *MemoryStore) Append(_ context.Context, message chat.Message) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionRequired
	}
	if !message.Role.Valid() {
		return chat.Message{}, ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[message.SessionID]
	if !ok {
		return chat.Message{}, ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	session.UpdatedAt = message.CreatedAt
	s.sessions[message.SessionID] = session
	return message, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *MemoryStore) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// Rebind moves a transcript to the id issued by the retrieval service.
// Rebinding onto an existing session merges the old turns after its own.
func (s *MemoryStore) Rebind(_ context.Context, oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	if newID == "" {
		return ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[oldID]
	if !ok {
		return ErrSessionNotFound
	}
	moved := s.messages[oldID]
	for i := range moved {
		moved[i].SessionID = newID
	}

	if existing, ok := s.sessions[newID]; ok {
		existing.UpdatedAt = time.Now().UTC()
		s.sessions[newID] = existing
		s.messages[newID] = append(s.messages[newID], withoutSystem(moved)...)
	} else {
		session.ID = newID
		s.sessions[newID] = session
		s.messages[newID] = moved
	}

	delete(s.sessions, oldID)
	delete(s.messages, oldID)
	return nil
}

// Reset drops a session and its transcript ("New Conversation").
func (s *MemoryStore) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func seedMessage(sessionID string, at time.Time) chat.Message {
	return chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      chat.RoleSystem,
		Content:   chat.SystemPrompt,
		CreatedAt: at,
	}
}

func withoutSystem(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != chat.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}
