package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-poll-service/internal/domain"
)

// StudentStore is an in-memory implementation of app.StudentStore keyed by session id.
type StudentStore struct {
	mu        sync.RWMutex
	bySession map[string]*domain.Student
	byID      map[string]*domain.Student
	now       func() time.Time
}

func NewStudentStore() *StudentStore {
	return &StudentStore{
		bySession: make(map[string]*domain.Student),
		byID:      make(map[string]*domain.Student),
		now:       time.Now,
	}
}

// RegisterStudent creates the student or refreshes its name. The kicked flag is never cleared.
func (s *StudentStore) RegisterStudent(_ context.Context, name, sessionID string) (domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if student, ok := s.bySession[sessionID]; ok {
		student.Name = name
		return *student, nil
	}
	student := &domain.Student{
		ID:        uuid.NewString(),
		Name:      name,
		SessionID: sessionID,
		JoinedAt:  s.now(),
	}
	s.bySession[sessionID] = student
	s.byID[student.ID] = student
	return *student, nil
}

func (s *StudentStore) GetStudent(_ context.Context, studentID string) (domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if student, ok := s.byID[studentID]; ok {
		return *student, nil
	}
	return domain.Student{}, domain.ErrStudentNotFound
}

func (s *StudentStore) GetStudentBySession(_ context.Context, sessionID string) (domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if student, ok := s.bySession[sessionID]; ok {
		return *student, nil
	}
	return domain.Student{}, domain.ErrStudentNotFound
}

func (s *StudentStore) KickStudent(_ context.Context, studentID string) (domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.byID[studentID]
	if !ok {
		return domain.Student{}, domain.ErrStudentNotFound
	}
	student.IsKicked = true
	return *student, nil
}

// ListStudents returns students in join order.
func (s *StudentStore) ListStudents(_ context.Context) ([]domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	students := make([]domain.Student, 0, len(s.byID))
	for _, student := range s.byID {
		students = append(students, *student)
	}
	sort.Slice(students, func(i, j int) bool {
		return students[i].JoinedAt.Before(students[j].JoinedAt)
	})
	return students, nil
}
