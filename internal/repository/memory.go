package repository

import (
	"context"
	"sync"

	"genai-chatbot/internal/domain"
)

// MemoryStore is the degraded history store used when no persistent backend
// is reachable at startup. It keeps one list for the whole process: user IDs
// and timestamps are ignored, so every user reads every other user's turns.
type MemoryStore struct {
	mu    sync.RWMutex
	turns []domain.ChatMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// GetHistory returns a copy of the shared list regardless of userID.
func (s *MemoryStore) GetHistory(_ context.Context, _ string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChatMessage, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

// AppendTurn appends (role, message) in insertion order.
func (s *MemoryStore) AppendTurn(_ context.Context, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn.ChatMessage())
	return nil
}

// Len reports how many turns have been appended.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}
