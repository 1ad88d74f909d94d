package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-poll-service/internal/domain"
)

// PollStore is an in-memory implementation of app.PollStore.
type PollStore struct {
	mu       sync.RWMutex
	polls    map[string]*domain.Poll
	answered map[string]struct{} // pollID + "/" + studentID
	activeID string
	newID    func() string
}

func NewPollStore() *PollStore {
	return &PollStore{
		polls:    make(map[string]*domain.Poll),
		answered: make(map[string]struct{}),
		newID:    uuid.NewString,
	}
}

func (s *PollStore) CreatePoll(_ context.Context, input domain.NewPoll) (domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != "" {
		return domain.Poll{}, domain.ErrPollAlreadyActive
	}

	options := make([]domain.PollOption, 0, len(input.Options))
	for _, text := range input.Options {
		options = append(options, domain.PollOption{ID: s.newID(), Text: text})
	}
	poll := &domain.Poll{
		ID:            s.newID(),
		Question:      input.Question,
		Options:       options,
		CorrectAnswer: input.CorrectAnswer,
		TimeLimit:     input.TimeLimit,
		Status:        domain.PollStatusActive,
		CreatedAt:     input.CreatedAt,
	}
	s.polls[poll.ID] = poll
	s.activeID = poll.ID
	return clonePoll(poll), nil
}

func (s *PollStore) GetPoll(_ context.Context, pollID string) (domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.polls[pollID]
	if !ok {
		return domain.Poll{}, domain.ErrPollNotFound
	}
	return clonePoll(poll), nil
}

func (s *PollStore) ActivePoll(_ context.Context) (domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return domain.Poll{}, domain.ErrPollNotFound
	}
	return clonePoll(s.polls[s.activeID]), nil
}

func (s *PollStore) ClosePoll(_ context.Context, pollID string, endedAt time.Time) (domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[pollID]
	if !ok {
		return domain.Poll{}, domain.ErrPollNotFound
	}
	if poll.Status == domain.PollStatusActive {
		poll.Status = domain.PollStatusClosed
		ended := endedAt
		poll.EndedAt = &ended
	}
	if s.activeID == pollID {
		s.activeID = ""
	}
	return clonePoll(poll), nil
}

func (s *PollStore) InsertResponse(_ context.Context, response domain.Response) (domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[response.PollID]
	if !ok {
		return domain.Response{}, domain.ErrPollNotFound
	}
	if _, ok := poll.Option(response.OptionID); !ok {
		return domain.Response{}, domain.ErrOptionNotFound
	}
	key := response.PollID + "/" + response.StudentID
	if _, dup := s.answered[key]; dup {
		return domain.Response{}, domain.ErrAlreadyAnswered
	}
	s.answered[key] = struct{}{}

	response.ID = s.newID()
	poll.Responses = append(poll.Responses, response)
	return response, nil
}

// ClosedPolls returns closed polls, most recent first.
func (s *PollStore) ClosedPolls(_ context.Context) ([]domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	polls := make([]domain.Poll, 0, len(s.polls))
	for _, poll := range s.polls {
		if poll.Status == domain.PollStatusClosed {
			polls = append(polls, clonePoll(poll))
		}
	}
	sort.Slice(polls, func(i, j int) bool {
		return polls[i].CreatedAt.After(polls[j].CreatedAt)
	})
	return polls, nil
}

// ResponseCount is a test helper.
func (s *PollStore) ResponseCount(pollID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if poll, ok := s.polls[pollID]; ok {
		return len(poll.Responses)
	}
	return 0
}

// ActiveCount reports how many polls are active; never more than one.
func (s *PollStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, poll := range s.polls {
		if poll.Status == domain.PollStatusActive {
			n++
		}
	}
	return n
}

func clonePoll(p *domain.Poll) domain.Poll {
	out := *p
	out.Options = append([]domain.PollOption(nil), p.Options...)
	out.Responses = append([]domain.Response(nil), p.Responses...)
	if p.EndedAt != nil {
		ended := *p.EndedAt
		out.EndedAt = &ended
	}
	return out
}
