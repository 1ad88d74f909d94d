package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"live-poll-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCatalog lists the quizzes available for practice.
type QuizCatalog interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

// AttemptStore persists scored practice attempts.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, attempt domain.QuizAttempt) (domain.QuizAttempt, error)
	AttemptsBySession(ctx context.Context, sessionID string) ([]domain.QuizAttempt, error)
}

// QuizService contains the practice quiz use cases. It shares no state with the Coordinator.
type QuizService struct {
	quizzes  QuizRepository
	catalog  QuizCatalog
	attempts AttemptStore
	now      func() time.Time
}

func NewQuizService(quizzes QuizRepository, catalog QuizCatalog, attempts AttemptStore) *QuizService {
	return &QuizService{quizzes: quizzes, catalog: catalog, attempts: attempts, now: time.Now}
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(quizzes QuizRepository, catalog QuizCatalog, attempts AttemptStore, now func() time.Time) *QuizService {
	s := NewQuizService(quizzes, catalog, attempts)
	s.now = now
	return s
}

// GetQuiz returns a quiz through the cache.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if strings.TrimSpace(quizID) == "" {
		return domain.Quiz{}, domain.Invalid("quizId is required")
	}
	return s.quizzes.GetQuiz(ctx, quizID)
}

// ListQuizzes returns all quizzes, newest first.
func (s *QuizService) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	quizzes, err := s.catalog.ListQuizzes(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(quizzes, func(i, j int) bool {
		return quizzes[i].CreatedAt.After(quizzes[j].CreatedAt)
	})
	return quizzes, nil
}

// SubmitAttempt scores the answers against the quiz and stores the attempt.
func (s *QuizService) SubmitAttempt(ctx context.Context, input domain.SubmitAttemptInput) (domain.QuizAttempt, error) {
	if input.QuizID == "" || input.StudentSessionID == "" || strings.TrimSpace(input.StudentName) == "" {
		return domain.QuizAttempt{}, domain.Invalid("quizId, studentSessionId and studentName are required")
	}
	if len(input.Answers) == 0 {
		return domain.QuizAttempt{}, domain.Invalid("answers are required")
	}

	quiz, err := s.quizzes.GetQuiz(ctx, input.QuizID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}

	answers, score, err := scoreAttempt(quiz, input.Answers)
	if err != nil {
		return domain.QuizAttempt{}, err
	}

	return s.attempts.SaveAttempt(ctx, domain.QuizAttempt{
		QuizID:           quiz.ID,
		StudentSessionID: input.StudentSessionID,
		StudentName:      strings.TrimSpace(input.StudentName),
		Score:            score,
		TotalQuestions:   len(quiz.Questions),
		Answers:          answers,
		CompletedAt:      s.now(),
	})
}

// StudentAttempts returns a student's attempts, newest first.
func (s *QuizService) StudentAttempts(ctx context.Context, sessionID string) ([]domain.QuizAttempt, error) {
	if sessionID == "" {
		return nil, domain.Invalid("sessionId is required")
	}
	attempts, err := s.attempts.AttemptsBySession(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].CompletedAt.After(attempts[j].CompletedAt)
	})
	return attempts, nil
}

// scoreAttempt validates each answer against quiz content and counts the correct ones.
// A question answered twice counts once, with the first answer.
func scoreAttempt(quiz domain.Quiz, submissions []domain.AnswerSubmission) ([]domain.AttemptAnswer, int, error) {
	answers := make([]domain.AttemptAnswer, 0, len(submissions))
	seen := make(map[string]struct{}, len(submissions))
	score := 0
	for _, sub := range submissions {
		question, ok := quiz.Question(sub.QuestionID)
		if !ok {
			return nil, 0, domain.ErrQuestionNotFound
		}
		if _, dup := seen[question.ID]; dup {
			continue
		}
		seen[question.ID] = struct{}{}

		correct := sub.SelectedAnswer == question.CorrectAnswer
		if correct {
			score++
		}
		answers = append(answers, domain.AttemptAnswer{
			QuestionID:     question.ID,
			SelectedAnswer: sub.SelectedAnswer,
			IsCorrect:      correct,
		})
	}
	return answers, score, nil
}
