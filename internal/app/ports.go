package app

import (
	"context"
	"time"

	"live-poll-service/internal/domain"
)

// PollStore persists polls, options and responses.
// Implementations return domain.ErrNotFound / domain.ErrConflict kinds for those outcomes;
// any other error is treated as the store being unavailable.
type PollStore interface {
	CreatePoll(ctx context.Context, poll domain.NewPoll) (domain.Poll, error)
	GetPoll(ctx context.Context, pollID string) (domain.Poll, error)
	// ActivePoll returns domain.ErrPollNotFound when no poll is active.
	ActivePoll(ctx context.Context) (domain.Poll, error)
	ClosePoll(ctx context.Context, pollID string, endedAt time.Time) (domain.Poll, error)
	InsertResponse(ctx context.Context, response domain.Response) (domain.Response, error)
	ClosedPolls(ctx context.Context) ([]domain.Poll, error)
}

// StudentStore persists students and their kicked flag.
type StudentStore interface {
	// RegisterStudent returns the student for sessionID, creating it or refreshing its name.
	RegisterStudent(ctx context.Context, name, sessionID string) (domain.Student, error)
	GetStudent(ctx context.Context, studentID string) (domain.Student, error)
	GetStudentBySession(ctx context.Context, sessionID string) (domain.Student, error)
	KickStudent(ctx context.Context, studentID string) (domain.Student, error)
	ListStudents(ctx context.Context) ([]domain.Student, error)
}

// Gateway delivers events to connected clients. Implementations must not block.
type Gateway interface {
	Broadcast(event domain.Event)
	Send(connID string, event domain.Event)
	Disconnect(connID string)
}

// Timer is a cancelable pending expiry.
type Timer interface {
	Stop() bool
}

// Scheduler arms timers; swapped out in tests.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
