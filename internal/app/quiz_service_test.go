package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
	"live-poll-service/internal/infra/memory"
)

func TestSubmitAttemptScoresByAnswerText(t *testing.T) {
	ctx := context.Background()
	service := newTestQuizService()

	attempt, err := service.SubmitAttempt(ctx, domain.SubmitAttemptInput{
		QuizID:           "quiz-1",
		StudentSessionID: "sess-1",
		StudentName:      "Alice",
		Answers: []domain.AnswerSubmission{
			{QuestionID: "q1", SelectedAnswer: "4"},
			{QuestionID: "q2", SelectedAnswer: "Lyon"},
			{QuestionID: "q1", SelectedAnswer: "3"},
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if attempt.ID == "" {
		t.Fatalf("expected persisted attempt id")
	}
	if attempt.Score != 1 || attempt.TotalQuestions != 2 {
		t.Fatalf("expected score 1/2, got %d/%d", attempt.Score, attempt.TotalQuestions)
	}
	if len(attempt.Answers) != 2 || !attempt.Answers[0].IsCorrect || attempt.Answers[1].IsCorrect {
		t.Fatalf("unexpected answers %+v", attempt.Answers)
	}

	attempts, err := service.StudentAttempts(ctx, "sess-1")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].ID != attempt.ID {
		t.Fatalf("expected stored attempt, got %+v", attempts)
	}
}

func TestSubmitAttemptValidation(t *testing.T) {
	ctx := context.Background()
	service := newTestQuizService()

	_, err := service.SubmitAttempt(ctx, domain.SubmitAttemptInput{QuizID: "quiz-1"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	_, err = service.SubmitAttempt(ctx, domain.SubmitAttemptInput{
		QuizID: "quiz-unknown", StudentSessionID: "s", StudentName: "n",
		Answers: []domain.AnswerSubmission{{QuestionID: "q1", SelectedAnswer: "4"}},
	})
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}

	_, err = service.SubmitAttempt(ctx, domain.SubmitAttemptInput{
		QuizID: "quiz-1", StudentSessionID: "s", StudentName: "n",
		Answers: []domain.AnswerSubmission{{QuestionID: "q9", SelectedAnswer: "4"}},
	})
	if err != domain.ErrQuestionNotFound {
		t.Fatalf("expected question error, got %v", err)
	}
}

func TestListQuizzesNewestFirst(t *testing.T) {
	service := newTestQuizService()

	quizzes, err := service.ListQuizzes(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(quizzes) != 2 || quizzes[0].ID != "quiz-2" {
		t.Fatalf("expected quiz-2 first, got %+v", quizzes)
	}
}

func newTestQuizService() *app.QuizService {
	loader := memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:        "quiz-1",
			Title:     "Basics",
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Questions: []domain.Question{
				{ID: "q1", Prompt: "2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: "4", Order: 1},
				{ID: "q2", Prompt: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris", Order: 2},
			},
		},
		"quiz-2": {
			ID:        "quiz-2",
			Title:     "Later",
			CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	repo := memory.NewQuizRepository(loader, time.Minute)
	now := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return app.NewQuizServiceWithClock(repo, loader, memory.NewAttemptStore(), now)
}
