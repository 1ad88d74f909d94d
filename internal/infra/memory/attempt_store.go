package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"live-poll-service/internal/domain"
)

// AttemptStore keeps practice attempts per student session.
type AttemptStore struct {
	mu        sync.RWMutex
	bySession map[string][]domain.QuizAttempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{bySession: make(map[string][]domain.QuizAttempt)}
}

func (s *AttemptStore) SaveAttempt(_ context.Context, attempt domain.QuizAttempt) (domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt.ID = uuid.NewString()
	attempt.Answers = append([]domain.AttemptAnswer(nil), attempt.Answers...)
	s.bySession[attempt.StudentSessionID] = append(s.bySession[attempt.StudentSessionID], attempt)
	return attempt, nil
}

func (s *AttemptStore) AttemptsBySession(_ context.Context, sessionID string) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.QuizAttempt(nil), s.bySession[sessionID]...), nil
}
