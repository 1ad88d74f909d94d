package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-poll-service/internal/domain"
)

// AttemptStore persists scored practice attempts; answers are kept as JSONB.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) SaveAttempt(ctx context.Context, attempt domain.QuizAttempt) (domain.QuizAttempt, error) {
	answers, err := json.Marshal(attempt.Answers)
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("marshal answers: %w", err)
	}
	attempt.ID = uuid.NewString()
	attempt.CompletedAt = attempt.CompletedAt.UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_attempts (id, quiz_id, student_session_id, student_name, score, total_questions, answers, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		attempt.ID, attempt.QuizID, attempt.StudentSessionID, attempt.StudentName,
		attempt.Score, attempt.TotalQuestions, string(answers), attempt.CompletedAt)
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("save attempt: %w", mapErr(err, domain.ErrQuizNotFound, domain.ErrConflict))
	}
	return attempt, nil
}

func (s *AttemptStore) AttemptsBySession(ctx context.Context, sessionID string) ([]domain.QuizAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, student_session_id, student_name, score, total_questions, answers::text, completed_at
		 FROM quiz_attempts WHERE student_session_id = $1 ORDER BY completed_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.QuizAttempt{}
	for rows.Next() {
		var (
			a   domain.QuizAttempt
			raw string
		)
		if err := rows.Scan(&a.ID, &a.QuizID, &a.StudentSessionID, &a.StudentName, &a.Score, &a.TotalQuestions, &raw, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &a.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
