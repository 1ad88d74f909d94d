package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-poll-service/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 8192

	sendBufferSize = 256
)

// Client is one WebSocket connection. Its role and identity are filled in
// by teacher:connect or student:join.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  *zap.Logger

	mu        sync.Mutex
	role      domain.Role
	studentID string
	sessionID string
}

func newClient(id string, hub *Hub, conn *websocket.Conn, log *zap.Logger) *Client {
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		log:  log.With(zap.String("conn_id", id)),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) caller() domain.Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Caller{ConnID: c.id, Role: c.role, StudentID: c.studentID, SessionID: c.sessionID}
}

func (c *Client) setTeacher() {
	c.mu.Lock()
	c.role = domain.RoleTeacher
	c.mu.Unlock()
}

func (c *Client) setStudent(view domain.ParticipantView) {
	c.mu.Lock()
	c.role = domain.RoleStudent
	c.studentID = view.ID
	c.sessionID = view.SessionID
	c.mu.Unlock()
}

// readPump reads inbound messages until the connection fails, then reports the disconnect.
func (c *Client) readPump(ctx context.Context, d *Dispatcher) {
	defer func() {
		c.hub.Unregister(c)
		d.polls.Leave(context.WithoutCancel(ctx), c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.Send(c.id, domain.ErrorEvent(domain.Invalid("invalid message format")))
			continue
		}
		d.Dispatch(ctx, c, msg)
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
