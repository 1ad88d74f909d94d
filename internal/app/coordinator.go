package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"live-poll-service/internal/domain"
)

const (
	minOptions = 2
	maxOptions = 6

	// A timer expiry whose close fails is retried this often, up to maxExpireRetries times.
	expireRetryDelay = time.Second
	maxExpireRetries = 5
)

// CoordinatorConfig carries the poll limits read from configuration.
type CoordinatorConfig struct {
	DefaultTimeLimit int // seconds, applied when a teacher sends 0
	MaxTimeLimit     int // seconds
	StoreTimeout     time.Duration
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithScheduler replaces the timer implementation.
func WithScheduler(s Scheduler) CoordinatorOption {
	return func(c *Coordinator) { c.scheduler = s }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// Coordinator drives the live poll state machine. Every inbound event and every timer
// expiry runs under mu, so the registry, the active poll and the timer handle have a single writer.
type Coordinator struct {
	polls     PollStore
	students  StudentStore
	gateway   Gateway
	scheduler Scheduler
	now       func() time.Time
	log       *zap.Logger
	cfg       CoordinatorConfig

	mu        sync.Mutex
	registry  *Registry
	active    *domain.Poll
	responses []domain.Response
	timer     Timer
	retries   int // failed closes of the current expiry
}

// NewCoordinator wires the coordinator to its collaborators.
func NewCoordinator(polls PollStore, students StudentStore, gateway Gateway, cfg CoordinatorConfig, opts ...CoordinatorOption) *Coordinator {
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = 60
	}
	if cfg.MaxTimeLimit <= 0 {
		cfg.MaxTimeLimit = 300
	}
	c := &Coordinator{
		polls:     polls,
		students:  students,
		gateway:   gateway,
		scheduler: realScheduler{},
		now:       time.Now,
		log:       zap.NewNop(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = NewRegistry(c.now)
	return c
}

// CreatePoll starts a new poll. Only one poll may be active; a second attempt is rejected, never queued.
func (c *Coordinator) CreatePoll(ctx context.Context, caller domain.Caller, input domain.CreatePollInput) (domain.Poll, error) {
	if !caller.IsTeacher() {
		return domain.Poll{}, domain.ErrTeacherOnly
	}
	newPoll, err := c.validatePoll(input)
	if err != nil {
		return domain.Poll{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return domain.Poll{}, domain.ErrPollAlreadyActive
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	// Another writer may have left an active poll in the store.
	if _, err := c.polls.ActivePoll(sctx); err == nil {
		return domain.Poll{}, domain.ErrPollAlreadyActive
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Poll{}, domain.Unavailable("load active poll", err)
	}

	newPoll.CreatedAt = c.now()
	poll, err := c.polls.CreatePoll(sctx, newPoll)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Poll{}, domain.ErrPollAlreadyActive
		}
		return domain.Poll{}, domain.Unavailable("create poll", err)
	}

	c.registry.ResetAllAnswered()
	c.active = &poll
	c.responses = nil
	c.armLocked(poll.ID, time.Duration(poll.TimeLimit)*time.Second)

	view := activeView(poll, poll.TimeLimit)
	c.gateway.Broadcast(domain.NewEvent(domain.EventPollStarted, domain.PollStartedPayload{Poll: view}))
	c.gateway.Broadcast(domain.NewEvent(domain.EventParticipantsUpdated, c.registry.Snapshot()))

	c.log.Info("poll started",
		zap.String("poll_id", poll.ID),
		zap.Int("options", len(poll.Options)),
		zap.Int("time_limit", poll.TimeLimit),
	)
	return poll, nil
}

// SubmitAnswer records the first answer of a student to the active poll.
func (c *Coordinator) SubmitAnswer(ctx context.Context, caller domain.Caller, input domain.SubmitAnswerInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	participant, ok := c.registry.FindByConn(caller.ConnID)
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if input.StudentID != "" && input.StudentID != participant.StudentID {
		return domain.ErrInvalidStudent
	}
	if c.active == nil {
		return domain.ErrNoActivePoll
	}
	if input.PollID != c.active.ID {
		return domain.ErrPollNotActive
	}
	if _, ok := c.active.Option(input.OptionID); !ok {
		return domain.ErrOptionNotFound
	}
	if participant.HasAnswered {
		return domain.ErrAlreadyAnswered
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	student, err := c.students.GetStudent(sctx, participant.StudentID)
	if err != nil {
		return storeErr("load student", err)
	}
	if student.IsKicked {
		c.registry.Leave(participant.SessionID)
		c.blockLocked(participant.ConnID)
		c.gateway.Broadcast(domain.NewEvent(domain.EventParticipantsUpdated, c.registry.Snapshot()))
		return domain.ErrStudentKicked
	}

	// The flag is the fast guard; it is set before the insert so a queued duplicate sees it.
	c.registry.MarkAnswered(participant.SessionID)

	response, err := c.polls.InsertResponse(sctx, domain.Response{
		StudentID:   participant.StudentID,
		StudentName: participant.Name,
		PollID:      c.active.ID,
		OptionID:    input.OptionID,
		AnsweredAt:  c.now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			c.log.Debug("duplicate response rejected by store",
				zap.String("poll_id", c.active.ID),
				zap.String("student_id", participant.StudentID),
			)
			// The stored response counts: keep the flag and re-check whether everyone is done.
			c.gateway.Broadcast(domain.NewEvent(domain.EventParticipantsUpdated, c.registry.Snapshot()))
			c.endIfAllAnsweredLocked(ctx)
			return domain.ErrAlreadyAnswered
		}
		c.registry.UnmarkAnswered(participant.SessionID)
		return domain.Unavailable("insert response", err)
	}
	if response.StudentName == "" {
		response.StudentName = participant.Name
	}
	c.responses = append(c.responses, response)

	c.gateway.Broadcast(domain.NewEvent(domain.EventPollUpdated, c.resultsLocked()))
	c.gateway.Broadcast(domain.NewEvent(domain.EventParticipantsUpdated, c.registry.Snapshot()))

	if c.registry.AnsweredCount() >= c.registry.Count() {
		if err := c.endPollLocked(ctx, c.active.ID); err != nil {
			// The answer itself was accepted; the timer or the teacher will close the poll.
			c.log.Warn("end poll after all answered", zap.Error(err))
		}
	}
	return nil
}

// StopPoll ends the active poll on the teacher's request.
func (c *Coordinator) StopPoll(ctx context.Context, caller domain.Caller, pollID string) error {
	if !caller.IsTeacher() {
		return domain.ErrTeacherOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return domain.ErrNoActivePoll
	}
	if pollID != "" && pollID != c.active.ID {
		return domain.ErrPollNotActive
	}
	return c.endPollLocked(ctx, c.active.ID)
}

// expire is the timer callback. A timer armed for an earlier poll finds a different id and does nothing.
func (c *Coordinator) expire(pollID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.ID != pollID {
		return
	}
	c.timer = nil
	if err := c.endPollLocked(context.Background(), pollID); err != nil {
		c.retries++
		if c.retries <= maxExpireRetries {
			c.log.Warn("close expired poll, retrying",
				zap.String("poll_id", pollID),
				zap.Int("attempt", c.retries),
				zap.Error(err),
			)
			c.armLocked(pollID, expireRetryDelay)
			return
		}
		c.log.Error("close expired poll", zap.String("poll_id", pollID), zap.Error(err))
	}
}

// endPollLocked is the terminal transition shared by timeout, all-answered and manual stop.
func (c *Coordinator) endPollLocked(ctx context.Context, pollID string) error {
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	closed, err := c.polls.ClosePoll(sctx, pollID, c.now())
	if err != nil {
		return storeErr("close poll", err)
	}

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.active = nil
	c.responses = nil
	c.retries = 0

	results := ComputeResults(closed, closed.Responses, c.registry.Count(), 0)
	c.gateway.Broadcast(domain.NewEvent(domain.EventPollEnded, results))

	c.log.Info("poll ended",
		zap.String("poll_id", pollID),
		zap.Int("responses", results.TotalResponses),
		zap.Int("students", results.TotalStudents),
	)
	return nil
}

// Join registers a student connection. Kicked students are refused and never reach the registry.
func (c *Coordinator) Join(ctx context.Context, caller domain.Caller, name, sessionID string) (domain.ParticipantView, error) {
	name = strings.TrimSpace(name)
	sessionID = strings.TrimSpace(sessionID)
	if name == "" || sessionID == "" {
		return domain.ParticipantView{}, domain.Invalid("name and sessionId are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if bound, ok := c.registry.FindByConn(caller.ConnID); ok && bound.SessionID != sessionID {
		return domain.ParticipantView{}, domain.ErrConnectionBound
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	student, err := c.students.RegisterStudent(sctx, name, sessionID)
	if err != nil {
		return domain.ParticipantView{}, storeErr("register student", err)
	}
	if student.IsKicked {
		c.blockLocked(caller.ConnID)
		return domain.ParticipantView{}, domain.ErrStudentKicked
	}

	view := c.registry.Join(student, caller.ConnID)
	if !view.HasAnswered && c.active != nil && c.answeredLocked(student.ID) {
		// Answered before reconnecting: the registry entry was dropped on leave, the response was not.
		c.registry.MarkAnswered(sessionID)
		view.HasAnswered = true
	}
	c.gateway.Send(caller.ConnID, domain.NewEvent(domain.EventStudentJoined, domain.JoinedPayload{Student: view}))
	c.gateway.Broadcast(domain.NewEvent(domain.EventParticipantsUpdated, c.registry.Snapshot()))

	if c.active != nil {
		remaining := c.active.TimeRemaining(c.now())
		c.gateway.Send(caller.ConnID, domain.NewEvent(domain.EventPollStarted, domain.PollStartedPayload{
			Poll: activeView(*c.active, remaining),
		}))
	}

	c.log.Debug("student joined", zap.String("student_id", student.ID), zap.String("conn_id", caller.ConnID))
	return view, nil
}

// ConnectTeacher brings a teacher connection up to date with participants and the running poll.
func (c *Coordinator) ConnectTeacher(caller domain.Caller) error {
	if !caller.IsTeacher() {
		return domain.ErrTeacherOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.gateway.Send(caller.ConnID, domain.NewEvent(domain.EventParticipantsUpdated, c.registry.Snapshot()))
	if c.active != nil {
		remaining := c.active.TimeRemaining(c.now())
		c.gateway.Send(caller.ConnID, domain.NewEvent(domain.EventPollStarted, domain.PollStartedPayload{
			Poll: activeView(*c.active, remaining),
		}))
		c.gateway.Send(caller.ConnID, domain.NewEvent(domain.EventPollUpdated, c.resultsLocked()))
	}
	return nil
}

// Leave drops every participant bound to connID. Unknown connections are ignored.
func (c *Coordinator) Leave(ctx context.Context, connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	left := c.registry.LeaveConn(connID)
	if len(left) == 0 {
		return
	}
	c.gateway.Broadcast(domain.NewEvent(domain.EventParticipantsUpdated, c.registry.Snapshot()))
	for _, participant := range left {
		c.log.Debug("student left", zap.String("student_id", participant.StudentID), zap.String("conn_id", connID))
	}

	c.endIfAllAnsweredLocked(ctx)
}

// RemoveStudent kicks a student: the flag is persisted, the connection is notified and closed.
func (c *Coordinator) RemoveStudent(ctx context.Context, caller domain.Caller, studentID string) error {
	if !caller.IsTeacher() {
		return domain.ErrTeacherOnly
	}
	if strings.TrimSpace(studentID) == "" {
		return domain.Invalid("studentId is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	if _, err := c.students.KickStudent(sctx, studentID); err != nil {
		return storeErr("kick student", err)
	}

	if participant, ok := c.registry.FindByStudent(studentID); ok {
		c.registry.Leave(participant.SessionID)
		c.blockLocked(participant.ConnID)
	}
	c.gateway.Broadcast(domain.NewEvent(domain.EventParticipantsUpdated, c.registry.Snapshot()))
	c.log.Info("student removed", zap.String("student_id", studentID))

	c.endIfAllAnsweredLocked(ctx)
	return nil
}

// History returns closed polls with their responses.
func (c *Coordinator) History(ctx context.Context, caller domain.Caller) ([]domain.Poll, error) {
	if !caller.IsTeacher() {
		return nil, domain.ErrTeacherOnly
	}
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	polls, err := c.polls.ClosedPolls(sctx)
	if err != nil {
		return nil, storeErr("list closed polls", err)
	}
	return polls, nil
}

// ActivePoll returns the running poll view and its live results.
func (c *Coordinator) ActivePoll() (domain.ActivePollView, domain.ResultsSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return domain.ActivePollView{}, domain.ResultsSnapshot{}, false
	}
	remaining := c.active.TimeRemaining(c.now())
	return activeView(*c.active, remaining), c.resultsLocked(), true
}

// PollResults returns the results of any poll: live for the active one, final otherwise.
func (c *Coordinator) PollResults(ctx context.Context, pollID string) (domain.ResultsSnapshot, error) {
	c.mu.Lock()
	if c.active != nil && c.active.ID == pollID {
		results := c.resultsLocked()
		c.mu.Unlock()
		return results, nil
	}
	total := c.registry.Count()
	c.mu.Unlock()

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	poll, err := c.polls.GetPoll(sctx, pollID)
	if err != nil {
		return domain.ResultsSnapshot{}, storeErr("load poll", err)
	}
	return ComputeResults(poll, poll.Responses, total, 0), nil
}

// Participants returns connected students in join order.
func (c *Coordinator) Participants() []domain.ParticipantView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Snapshot()
}

// Restore adopts a poll left active by a previous process: the timer is re-armed for the
// remaining time, or the poll is closed right away when it has already run out.
func (c *Coordinator) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sctx, cancel := c.storeCtx(ctx)
	poll, err := c.polls.ActivePoll(sctx)
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return domain.Unavailable("load active poll", err)
	}

	c.active = &poll
	c.responses = append([]domain.Response(nil), poll.Responses...)

	deadline := poll.CreatedAt.Add(time.Duration(poll.TimeLimit) * time.Second)
	remaining := deadline.Sub(c.now())
	if remaining <= 0 {
		c.log.Info("closing poll that expired while offline", zap.String("poll_id", poll.ID))
		return c.endPollLocked(ctx, poll.ID)
	}
	c.armLocked(poll.ID, remaining)
	c.log.Info("restored active poll", zap.String("poll_id", poll.ID), zap.Duration("remaining", remaining))
	return nil
}

// Close cancels the pending timer.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) endIfAllAnsweredLocked(ctx context.Context) {
	if c.active == nil || c.registry.Count() == 0 {
		return
	}
	if c.registry.AnsweredCount() < c.registry.Count() {
		return
	}
	if err := c.endPollLocked(ctx, c.active.ID); err != nil {
		c.log.Warn("end poll after participant left", zap.Error(err))
	}
}

func (c *Coordinator) answeredLocked(studentID string) bool {
	for _, r := range c.responses {
		if r.StudentID == studentID {
			return true
		}
	}
	return false
}

// armLocked cancels any previous timer before arming the next one.
func (c *Coordinator) armLocked(pollID string, d time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.scheduler.AfterFunc(d, func() { c.expire(pollID) })
}

func (c *Coordinator) blockLocked(connID string) {
	c.gateway.Send(connID, domain.NewEvent(domain.EventStudentKicked, domain.KickedPayload{
		Message: "You have been removed from the poll system",
	}))
	c.gateway.Disconnect(connID)
}

func (c *Coordinator) resultsLocked() domain.ResultsSnapshot {
	remaining := c.active.TimeRemaining(c.now())
	return ComputeResults(*c.active, c.responses, c.registry.Count(), remaining)
}

func (c *Coordinator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.StoreTimeout)
}

func (c *Coordinator) validatePoll(input domain.CreatePollInput) (domain.NewPoll, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return domain.NewPoll{}, domain.Invalid("question is required")
	}
	if len(input.Options) < minOptions || len(input.Options) > maxOptions {
		return domain.NewPoll{}, domain.Invalid("a poll needs between %d and %d options", minOptions, maxOptions)
	}

	options := make([]string, 0, len(input.Options))
	seen := make(map[string]struct{}, len(input.Options))
	for _, raw := range input.Options {
		text := strings.TrimSpace(raw)
		if text == "" {
			return domain.NewPoll{}, domain.Invalid("options must not be empty")
		}
		if _, dup := seen[text]; dup {
			return domain.NewPoll{}, domain.Invalid("duplicate option %q", text)
		}
		seen[text] = struct{}{}
		options = append(options, text)
	}

	correct := strings.TrimSpace(input.CorrectAnswer)
	if _, ok := seen[correct]; !ok {
		return domain.NewPoll{}, domain.Invalid("correct answer must match one of the options")
	}

	limit := input.TimeLimit
	if limit == 0 {
		limit = c.cfg.DefaultTimeLimit
	}
	if limit < 1 || limit > c.cfg.MaxTimeLimit {
		return domain.NewPoll{}, domain.Invalid("time limit must be between 1 and %d seconds", c.cfg.MaxTimeLimit)
	}

	return domain.NewPoll{
		Question:      question,
		Options:       options,
		CorrectAnswer: correct,
		TimeLimit:     limit,
	}, nil
}

func activeView(poll domain.Poll, remaining int) domain.ActivePollView {
	return domain.ActivePollView{
		ID:            poll.ID,
		Question:      poll.Question,
		Options:       poll.Options,
		TimeLimit:     poll.TimeLimit,
		TimeRemaining: remaining,
	}
}

// storeErr keeps NotFound and Conflict kinds and reports everything else as Unavailable.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		return err
	}
	return domain.Unavailable(op, err)
}
