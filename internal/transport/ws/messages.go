package ws

import (
	"encoding/json"

	"live-poll-service/internal/domain"
)

// Inbound message types.
const (
	MsgStudentJoin    = "student:join"
	MsgTeacherConnect = "teacher:connect"
	MsgCreatePoll     = "teacher:create-poll"
	MsgSubmitAnswer   = "student:submit-answer"
	MsgStopPoll       = "teacher:stop-poll"
	MsgRemoveStudent  = "teacher:remove-student"
	MsgGetHistory     = "teacher:get-history"
	MsgChat           = "chat:message"
	MsgPing           = "ping"
)

// ClientMessage is the inbound envelope.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	Name      string `json:"name"`
	SessionID string `json:"sessionId"`
}

type stopPollPayload struct {
	PollID string `json:"pollId"`
}

type removeStudentPayload struct {
	StudentID string `json:"studentId"`
}

type chatPayload struct {
	Text       string      `json:"text"`
	Sender     string      `json:"sender"`
	SenderRole domain.Role `json:"senderRole"`
}

// decode unmarshals a payload; an absent payload decodes to the zero value.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.Invalid("malformed payload: %v", err)
	}
	return nil
}
