package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
	"live-poll-service/internal/infra/memory"
)

func TestPollFlowOverWebSocket(t *testing.T) {
	server := newTestServer(t)

	teacher := dial(t, server)
	send(t, teacher, MsgTeacherConnect, nil)
	readUntil(t, teacher, "participants:update")

	student := dial(t, server)
	send(t, student, MsgStudentJoin, map[string]any{"name": "Alice", "sessionId": "sess-1"})
	joined := readUntil(t, student, "student:joined")
	var joinedPayload struct {
		Student domain.ParticipantView `json:"student"`
	}
	mustDecode(t, joined.Payload, &joinedPayload)
	if joinedPayload.Student.ID == "" || joinedPayload.Student.Name != "Alice" {
		t.Fatalf("unexpected joined payload %+v", joinedPayload)
	}

	// Students cannot create polls.
	send(t, student, MsgCreatePoll, map[string]any{"question": "q", "options": []string{"a", "b"}, "correctAnswer": "a", "timeLimit": 30})
	errMsg := readUntil(t, student, "error")
	var errPayload domain.ErrorPayload
	mustDecode(t, errMsg.Payload, &errPayload)
	if errPayload.Code != domain.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", errPayload)
	}

	send(t, teacher, MsgCreatePoll, map[string]any{
		"question":      "2 + 2?",
		"options":       []string{"3", "4"},
		"correctAnswer": "4",
		"timeLimit":     30,
	})
	started := readUntil(t, student, "poll:new")
	var startedPayload domain.PollStartedPayload
	mustDecode(t, started.Payload, &startedPayload)
	if startedPayload.Poll.TimeRemaining != 30 || len(startedPayload.Poll.Options) != 2 {
		t.Fatalf("unexpected poll %+v", startedPayload.Poll)
	}

	send(t, student, MsgSubmitAnswer, map[string]any{
		"studentId": joinedPayload.Student.ID,
		"pollId":    startedPayload.Poll.ID,
		"optionId":  startedPayload.Poll.Options[1].ID,
	})

	ended := readUntil(t, teacher, "poll:ended")
	var results domain.ResultsSnapshot
	mustDecode(t, ended.Payload, &results)
	if results.TotalResponses != 1 || results.Options[1].Percentage != 100 || !results.Options[1].IsCorrect {
		t.Fatalf("unexpected final results %+v", results)
	}

	send(t, teacher, MsgGetHistory, nil)
	history := readUntil(t, teacher, "poll:history")
	var historyPayload domain.HistoryPayload
	mustDecode(t, history.Payload, &historyPayload)
	if len(historyPayload.Polls) != 1 || len(historyPayload.Polls[0].Responses) != 1 {
		t.Fatalf("unexpected history %+v", historyPayload)
	}
}

func TestChatAndPing(t *testing.T) {
	server := newTestServer(t)
	a := dial(t, server)
	b := dial(t, server)

	send(t, a, MsgPing, nil)
	readUntil(t, a, "pong")

	send(t, a, MsgChat, map[string]any{"text": "hello", "sender": "Alice", "senderRole": "student"})
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readUntil(t, conn, "chat:message")
		var chat domain.ChatMessage
		mustDecode(t, msg.Payload, &chat)
		if chat.Text != "hello" || chat.Timestamp.IsZero() {
			t.Fatalf("unexpected chat %+v", chat)
		}
	}

	send(t, a, "bogus", nil)
	errMsg := readUntil(t, a, "error")
	if !strings.Contains(string(errMsg.Payload), domain.CodeInvalidInput) {
		t.Fatalf("expected invalid input error, got %s", errMsg.Payload)
	}
}

func TestKickedStudentIsDisconnected(t *testing.T) {
	server := newTestServer(t)
	teacher := dial(t, server)
	send(t, teacher, MsgTeacherConnect, nil)

	student := dial(t, server)
	send(t, student, MsgStudentJoin, map[string]any{"name": "Bob", "sessionId": "sess-9"})
	joined := readUntil(t, student, "student:joined")
	var p struct {
		Student domain.ParticipantView `json:"student"`
	}
	mustDecode(t, joined.Payload, &p)

	send(t, teacher, MsgRemoveStudent, map[string]any{"studentId": p.Student.ID})
	readUntil(t, student, "student:kicked")

	_ = student.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := student.ReadMessage(); err != nil {
			break
		}
	}

	again := dial(t, server)
	send(t, again, MsgStudentJoin, map[string]any{"name": "Bob", "sessionId": "sess-9"})
	readUntil(t, again, "student:kicked")
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := NewHub(nil)
	coord := app.NewCoordinator(memory.NewPollStore(), memory.NewStudentStore(), hub, app.CoordinatorConfig{
		DefaultTimeLimit: 60,
		MaxTimeLimit:     300,
		StoreTimeout:     time.Second,
	})
	relay := app.NewChatRelay(hub, nil, nil)
	handler := NewHandler(hub, NewDispatcher(hub, coord, relay, nil), nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		coord.Close()
		hub.Close()
		server.Close()
	})
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips unrelated broadcasts until a message of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func mustDecode(t *testing.T, raw json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}
