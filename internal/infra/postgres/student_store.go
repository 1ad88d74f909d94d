package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-poll-service/internal/domain"
)

// StudentStore persists students keyed by their client session id.
type StudentStore struct {
	pool *pgxpool.Pool
}

func NewStudentStore(pool *pgxpool.Pool) *StudentStore {
	return &StudentStore{pool: pool}
}

const studentColumns = `id, name, session_id, is_kicked, joined_at`

// RegisterStudent upserts by session id; a rejoin refreshes the name and keeps the kicked flag.
func (s *StudentStore) RegisterStudent(ctx context.Context, name, sessionID string) (domain.Student, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO students (id, name, session_id, joined_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE SET name = EXCLUDED.name
		 RETURNING `+studentColumns,
		uuid.NewString(), name, sessionID, time.Now().UTC())
	student, err := scanStudent(row)
	if err != nil {
		return domain.Student{}, fmt.Errorf("register student: %w", err)
	}
	return student, nil
}

func (s *StudentStore) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, studentID)
	student, err := scanStudent(row)
	if err != nil {
		return domain.Student{}, fmt.Errorf("get student: %w", mapErr(err, domain.ErrStudentNotFound, domain.ErrConflict))
	}
	return student, nil
}

func (s *StudentStore) GetStudentBySession(ctx context.Context, sessionID string) (domain.Student, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE session_id = $1`, sessionID)
	student, err := scanStudent(row)
	if err != nil {
		return domain.Student{}, fmt.Errorf("get student by session: %w", mapErr(err, domain.ErrStudentNotFound, domain.ErrConflict))
	}
	return student, nil
}

func (s *StudentStore) KickStudent(ctx context.Context, studentID string) (domain.Student, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE students SET is_kicked = true WHERE id = $1 RETURNING `+studentColumns, studentID)
	student, err := scanStudent(row)
	if err != nil {
		return domain.Student{}, fmt.Errorf("kick student: %w", mapErr(err, domain.ErrStudentNotFound, domain.ErrConflict))
	}
	return student, nil
}

func (s *StudentStore) ListStudents(ctx context.Context) ([]domain.Student, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY joined_at`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	students := []domain.Student{}
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, student)
	}
	return students, rows.Err()
}

func scanStudent(row pgx.Row) (domain.Student, error) {
	var st domain.Student
	err := row.Scan(&st.ID, &st.Name, &st.SessionID, &st.IsKicked, &st.JoinedAt)
	return st, err
}
