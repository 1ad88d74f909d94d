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

// PollStore persists polls, options and responses in Postgres.
// The single-active-poll rule is backed by a partial unique index on polls.status.
type PollStore struct {
	pool *pgxpool.Pool
}

func NewPollStore(pool *pgxpool.Pool) *PollStore {
	return &PollStore{pool: pool}
}

func (s *PollStore) CreatePoll(ctx context.Context, input domain.NewPoll) (domain.Poll, error) {
	poll := domain.Poll{
		ID:            uuid.NewString(),
		Question:      input.Question,
		CorrectAnswer: input.CorrectAnswer,
		TimeLimit:     input.TimeLimit,
		Status:        domain.PollStatusActive,
		CreatedAt:     input.CreatedAt.UTC(),
		Options:       make([]domain.PollOption, 0, len(input.Options)),
	}

	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO polls (id, question, correct_answer, time_limit, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			poll.ID, poll.Question, poll.CorrectAnswer, poll.TimeLimit, string(poll.Status), poll.CreatedAt)
		if err != nil {
			return err
		}
		for i, text := range input.Options {
			option := domain.PollOption{ID: uuid.NewString(), Text: text}
			if _, err := tx.Exec(ctx,
				`INSERT INTO poll_options (id, poll_id, text, position) VALUES ($1, $2, $3, $4)`,
				option.ID, poll.ID, option.Text, i); err != nil {
				return err
			}
			poll.Options = append(poll.Options, option)
		}
		return nil
	})
	if err != nil {
		return domain.Poll{}, fmt.Errorf("create poll: %w", mapErr(err, domain.ErrPollNotFound, domain.ErrPollAlreadyActive))
	}
	return poll, nil
}

func (s *PollStore) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, question, correct_answer, time_limit, status, created_at, ended_at
		 FROM polls WHERE id = $1`, pollID)
	poll, err := scanPoll(row)
	if err != nil {
		return domain.Poll{}, fmt.Errorf("get poll: %w", mapErr(err, domain.ErrPollNotFound, domain.ErrConflict))
	}
	if err := s.loadChildren(ctx, []*domain.Poll{&poll}); err != nil {
		return domain.Poll{}, err
	}
	return poll, nil
}

func (s *PollStore) ActivePoll(ctx context.Context) (domain.Poll, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM polls WHERE status = 'active' LIMIT 1`).Scan(&id)
	if err != nil {
		return domain.Poll{}, fmt.Errorf("active poll: %w", mapErr(err, domain.ErrPollNotFound, domain.ErrConflict))
	}
	return s.GetPoll(ctx, id)
}

func (s *PollStore) ClosePoll(ctx context.Context, pollID string, endedAt time.Time) (domain.Poll, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE polls SET status = 'closed', ended_at = COALESCE(ended_at, $2) WHERE id = $1`,
		pollID, endedAt.UTC())
	if err != nil {
		return domain.Poll{}, fmt.Errorf("close poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Poll{}, domain.ErrPollNotFound
	}
	return s.GetPoll(ctx, pollID)
}

func (s *PollStore) InsertResponse(ctx context.Context, response domain.Response) (domain.Response, error) {
	response.ID = uuid.NewString()
	response.AnsweredAt = response.AnsweredAt.UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO responses (id, student_id, poll_id, option_id, answered_at)
		 SELECT $1, $2, $3, o.id, $5 FROM poll_options o WHERE o.id = $4 AND o.poll_id = $3`,
		response.ID, response.StudentID, response.PollID, response.OptionID, response.AnsweredAt)
	if err != nil {
		return domain.Response{}, fmt.Errorf("insert response: %w", mapErr(err, domain.ErrNotFound, domain.ErrAlreadyAnswered))
	}
	if tag.RowsAffected() == 0 {
		return domain.Response{}, domain.ErrOptionNotFound
	}
	return response, nil
}

// ClosedPolls returns closed polls with options and responses, most recent first.
func (s *PollStore) ClosedPolls(ctx context.Context) ([]domain.Poll, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, question, correct_answer, time_limit, status, created_at, ended_at
		 FROM polls WHERE status = 'closed' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("closed polls: %w", err)
	}
	defer rows.Close()

	polls := []domain.Poll{}
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		polls = append(polls, poll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("closed polls: %w", err)
	}

	ptrs := make([]*domain.Poll, len(polls))
	for i := range polls {
		ptrs[i] = &polls[i]
	}
	if err := s.loadChildren(ctx, ptrs); err != nil {
		return nil, err
	}
	return polls, nil
}

// loadChildren fills options and responses for the given polls in two queries.
func (s *PollStore) loadChildren(ctx context.Context, polls []*domain.Poll) error {
	if len(polls) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Poll, len(polls))
	ids := make([]string, 0, len(polls))
	for _, p := range polls {
		byID[p.ID] = p
		ids = append(ids, p.ID)
		p.Options = []domain.PollOption{}
		p.Responses = []domain.Response{}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT poll_id, id, text FROM poll_options WHERE poll_id = ANY($1) ORDER BY poll_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	for rows.Next() {
		var pollID string
		var opt domain.PollOption
		if err := rows.Scan(&pollID, &opt.ID, &opt.Text); err != nil {
			rows.Close()
			return fmt.Errorf("scan option: %w", err)
		}
		byID[pollID].Options = append(byID[pollID].Options, opt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load options: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT r.id, r.student_id, s.name, r.poll_id, r.option_id, r.answered_at
		 FROM responses r JOIN students s ON s.id = r.student_id
		 WHERE r.poll_id = ANY($1) ORDER BY r.answered_at`, ids)
	if err != nil {
		return fmt.Errorf("load responses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r domain.Response
		if err := rows.Scan(&r.ID, &r.StudentID, &r.StudentName, &r.PollID, &r.OptionID, &r.AnsweredAt); err != nil {
			return fmt.Errorf("scan response: %w", err)
		}
		byID[r.PollID].Responses = append(byID[r.PollID].Responses, r)
	}
	return rows.Err()
}

func scanPoll(row pgx.Row) (domain.Poll, error) {
	var (
		poll    domain.Poll
		status  string
		endedAt *time.Time
	)
	if err := row.Scan(&poll.ID, &poll.Question, &poll.CorrectAnswer, &poll.TimeLimit, &status, &poll.CreatedAt, &endedAt); err != nil {
		return domain.Poll{}, err
	}
	poll.Status = domain.PollStatus(status)
	poll.EndedAt = endedAt
	return poll, nil
}
