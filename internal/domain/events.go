package domain

// EventType names an outbound message pushed to clients.
type EventType string

const (
	EventStudentJoined       EventType = "student:joined"
	EventStudentKicked       EventType = "student:kicked"
	EventParticipantsUpdated EventType = "participants:update"
	EventPollStarted         EventType = "poll:new"
	EventPollUpdated         EventType = "poll:update"
	EventPollEnded           EventType = "poll:ended"
	EventPollHistory         EventType = "poll:history"
	EventChatMessage         EventType = "chat:message"
	EventError               EventType = "error"
	EventPong                EventType = "pong"
)

// Event is a typed outbound message.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// NewEvent creates an event.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload}
}

// JoinedPayload confirms a successful join to the joining client.
type JoinedPayload struct {
	Student ParticipantView `json:"student"`
}

// KickedPayload tells a client it has been removed.
type KickedPayload struct {
	Message string `json:"message"`
}

// PollStartedPayload wraps the poll broadcast on creation or on join.
type PollStartedPayload struct {
	Poll ActivePollView `json:"poll"`
}

// HistoryPayload carries closed polls to the teacher.
type HistoryPayload struct {
	Polls []Poll `json:"polls"`
}

// ErrorPayload is sent to the originating client only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent builds an error event for err.
func ErrorEvent(err error) Event {
	return NewEvent(EventError, ErrorPayload{Code: Code(err), Message: err.Error()})
}
