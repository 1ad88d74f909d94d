package domain

import "time"

// PollStatus is the lifecycle state persisted with a poll.
type PollStatus string

const (
	PollStatusActive PollStatus = "active"
	PollStatusClosed PollStatus = "closed"
)

// Role identifies what a connected client is allowed to do.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Caller describes the connection an inbound event came from.
type Caller struct {
	ConnID    string
	Role      Role
	StudentID string
	SessionID string
}

// IsTeacher reports whether the caller may run privileged poll actions.
func (c Caller) IsTeacher() bool {
	return c.Role == RoleTeacher
}

// Student is the durable record behind a participant.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SessionID string    `json:"sessionId"`
	IsKicked  bool      `json:"isKicked"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Participant is a connected student tracked for the lifetime of a connection.
type Participant struct {
	StudentID   string
	SessionID   string
	Name        string
	ConnID      string
	HasAnswered bool
	JoinedAt    time.Time
}

// ParticipantView is the client-facing projection of a participant.
type ParticipantView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SessionID   string `json:"sessionId"`
	HasAnswered bool   `json:"hasAnswered"`
}

// View projects the participant for broadcasting.
func (p *Participant) View() ParticipantView {
	return ParticipantView{
		ID:          p.StudentID,
		Name:        p.Name,
		SessionID:   p.SessionID,
		HasAnswered: p.HasAnswered,
	}
}

// PollOption is one selectable answer of a poll.
type PollOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Response is a student's persisted answer to a poll.
type Response struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName,omitempty"`
	PollID      string    `json:"pollId"`
	OptionID    string    `json:"optionId"`
	AnsweredAt  time.Time `json:"answeredAt"`
}

// Poll is the durable poll record including its options and responses.
type Poll struct {
	ID            string       `json:"id"`
	Question      string       `json:"question"`
	Options       []PollOption `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
	TimeLimit     int          `json:"timeLimit"` // seconds
	Status        PollStatus   `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	EndedAt       *time.Time   `json:"endedAt,omitempty"`
	Responses     []Response   `json:"responses"`
}

// Option returns the option with the given id.
func (p Poll) Option(optionID string) (PollOption, bool) {
	for _, opt := range p.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return PollOption{}, false
}

// TimeRemaining returns whole seconds left, derived from wall-clock time since creation.
func (p Poll) TimeRemaining(now time.Time) int {
	elapsed := int(now.Sub(p.CreatedAt) / time.Second)
	remaining := p.TimeLimit - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NewPoll is the validated input for creating a poll.
type NewPoll struct {
	Question      string
	Options       []string
	CorrectAnswer string
	TimeLimit     int
	CreatedAt     time.Time
}

// CreatePollInput is the raw teacher request before validation.
type CreatePollInput struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	TimeLimit     int      `json:"timeLimit"`
}

// SubmitAnswerInput is a student's answer event.
type SubmitAnswerInput struct {
	StudentID string `json:"studentId"`
	PollID    string `json:"pollId"`
	OptionID  string `json:"optionId"`
}

// ActivePollView is what clients receive when a poll starts or when they join mid-poll.
type ActivePollView struct {
	ID            string       `json:"id"`
	Question      string       `json:"question"`
	Options       []PollOption `json:"options"`
	TimeLimit     int          `json:"timeLimit"`
	TimeRemaining int          `json:"timeRemaining"`
}

// OptionResult is the aggregate for a single option.
type OptionResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	IsCorrect  bool    `json:"isCorrect"`
}

// ResultsSnapshot is a derived, never-persisted view of a poll's answers.
type ResultsSnapshot struct {
	PollID         string         `json:"pollId"`
	Question       string         `json:"question"`
	Options        []OptionResult `json:"options"`
	TotalResponses int            `json:"totalResponses"`
	TotalStudents  int            `json:"totalStudents"`
	TimeRemaining  int            `json:"timeRemaining"`
	Status         PollStatus     `json:"status"`
}

// ChatMessage is relayed verbatim to every connected client.
type ChatMessage struct {
	Text       string    `json:"text"`
	Sender     string    `json:"sender"`
	SenderRole Role      `json:"senderRole,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
