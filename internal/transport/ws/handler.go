package ws

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-poll-service/internal/domain"
)

// PollCoordinator is the part of app.Coordinator the socket layer drives.
type PollCoordinator interface {
	Join(ctx context.Context, caller domain.Caller, name, sessionID string) (domain.ParticipantView, error)
	ConnectTeacher(caller domain.Caller) error
	CreatePoll(ctx context.Context, caller domain.Caller, input domain.CreatePollInput) (domain.Poll, error)
	SubmitAnswer(ctx context.Context, caller domain.Caller, input domain.SubmitAnswerInput) error
	StopPoll(ctx context.Context, caller domain.Caller, pollID string) error
	RemoveStudent(ctx context.Context, caller domain.Caller, studentID string) error
	History(ctx context.Context, caller domain.Caller) ([]domain.Poll, error)
	Leave(ctx context.Context, connID string)
}

// ChatRelay relays chat messages.
type ChatRelay interface {
	Relay(ctx context.Context, caller domain.Caller, msg domain.ChatMessage) (domain.ChatMessage, error)
}

// Dispatcher routes inbound messages to the coordinator and chat relay.
// Failures go back to the originating connection only.
type Dispatcher struct {
	hub   *Hub
	polls PollCoordinator
	chat  ChatRelay
	log   *zap.Logger
}

// NewDispatcher routes messages from hub clients to the coordinator and chat relay.
func NewDispatcher(hub *Hub, polls PollCoordinator, chat ChatRelay, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{hub: hub, polls: polls, chat: chat, log: log}
}

// Dispatch handles a single inbound message.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, msg ClientMessage) {
	if err := d.dispatch(ctx, c, msg); err != nil {
		c.log.Debug("message rejected", zap.String("type", msg.Type), zap.Error(err))
		d.hub.Send(c.id, domain.ErrorEvent(err))
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, c *Client, msg ClientMessage) error {
	switch msg.Type {
	case MsgStudentJoin:
		var p joinPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		view, err := d.polls.Join(ctx, c.caller(), p.Name, p.SessionID)
		if err != nil {
			return err
		}
		c.setStudent(view)
		return nil

	case MsgTeacherConnect:
		c.setTeacher()
		return d.polls.ConnectTeacher(c.caller())

	case MsgCreatePoll:
		var p domain.CreatePollInput
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		_, err := d.polls.CreatePoll(ctx, c.caller(), p)
		return err

	case MsgSubmitAnswer:
		var p domain.SubmitAnswerInput
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return d.polls.SubmitAnswer(ctx, c.caller(), p)

	case MsgStopPoll:
		var p stopPollPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return d.polls.StopPoll(ctx, c.caller(), p.PollID)

	case MsgRemoveStudent:
		var p removeStudentPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return d.polls.RemoveStudent(ctx, c.caller(), p.StudentID)

	case MsgGetHistory:
		polls, err := d.polls.History(ctx, c.caller())
		if err != nil {
			return err
		}
		d.hub.Send(c.id, domain.NewEvent(domain.EventPollHistory, domain.HistoryPayload{Polls: polls}))
		return nil

	case MsgChat:
		var p chatPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		_, err := d.chat.Relay(ctx, c.caller(), domain.ChatMessage{Text: p.Text, Sender: p.Sender, SenderRole: p.SenderRole})
		return err

	case MsgPing:
		d.hub.Send(c.id, domain.NewEvent(domain.EventPong, nil))
		return nil

	default:
		return domain.Invalid("unknown message type %q", msg.Type)
	}
}

// Handler upgrades HTTP requests and runs the client pumps.
type Handler struct {
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewHandler builds the upgrade handler for the /ws endpoint.
func NewHandler(hub *Hub, dispatcher *Dispatcher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request; it returns when the connection closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), h.hub, conn, h.log)
	h.hub.Register(client)
	go client.writePump()
	client.readPump(r.Context(), h.dispatcher)
}
