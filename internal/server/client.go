// Package server manages individual WebSocket clients, handling read/write
// pumps, event dispatch, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// Client represents one live transport connection: the server-side
// connection identity. It owns the WebSocket connection, the buffered send
// channel the hub delivers into, and the per-connection send budget.
type Client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	addr    string
	closed  bool
	limiter *messageLimiter
	log     zerolog.Logger
}

// NewClient creates a new Client for the given WebSocket connection. The send
// channel is buffered so fan-out never blocks on a slow reader.
func NewClient(conn *websocket.Conn, h *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		// Frame limit: generous headroom over the message cap for the JSON
		// envelope and multi-byte text.
		conn.SetReadLimit(int64(cfg.MaxMessageLength)*4 + 1024)
	}

	id := uuid.New()
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		hub:     h,
		addr:    addr,
		limiter: newMessageLimiter(cfg.MessageLimit, cfg.MessageMinInterval()),
		log:     logger.With().Str("conn", id.String()).Str("addr", addr).Logger(),
	}
}

// ID returns the connection identity.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// ackOK sends a success reply for an acked operation back to this client.
func (c *Client) ackOK(event string, resp AckResponse) {
	c.hub.sendTo(c.id, marshalEnvelope(event, resp))
}

// ackError sends a failure reply carrying the user-facing message. Failures
// are only ever reported to the acting client.
func (c *Client) ackError(event string, err error) {
	c.hub.sendTo(c.id, marshalEnvelope(event, AckResponse{Success: false, Message: err.Error()}))
}

// handleEvent dispatches one inbound frame to the session layer.
func (c *Client) handleEvent(raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.log.Warn().Err(err).Msg("invalid frame; ignoring")
		return
	}

	switch envelope.Event {
	case EventCreateGroup:
		var req CreateGroupRequest
		if !c.decode(envelope, &req) {
			return
		}
		if err := c.hub.sessions.CreateGroup(c, req.UserName); err != nil {
			c.log.Debug().Err(err).Msg("create-group rejected")
		}

	case EventJoinGroup:
		var req JoinGroupRequest
		if !c.decode(envelope, &req) {
			return
		}
		if err := c.hub.sessions.JoinGroup(c, req.UserName, req.GroupCode); err != nil {
			c.log.Debug().Err(err).Msg("join-group rejected")
		}

	case EventChangeName:
		var req ChangeNameRequest
		if !c.decode(envelope, &req) {
			return
		}
		if err := c.hub.sessions.Rename(c, req.NewName); err != nil {
			c.log.Debug().Err(err).Msg("change-name rejected")
		}

	case EventLeaveGroup:
		c.hub.sessions.Leave(c)

	case EventSendMessage:
		var req SendMessageRequest
		if !c.decode(envelope, &req) {
			return
		}
		if !c.hub.sessions.PostMessage(c, req.Text) {
			c.log.Debug().Msg("message dropped")
		}

	case EventTyping:
		var req TypingRequest
		if !c.decode(envelope, &req) {
			return
		}
		c.hub.sessions.SetTyping(c, req.IsTyping)

	default:
		c.log.Debug().Str("event", envelope.Event).Msg("unknown event; ignoring")
	}
}

func (c *Client) decode(envelope Envelope, v any) bool {
	if len(envelope.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		c.log.Warn().Err(err).Str("event", envelope.Event).Msg("invalid event payload; ignoring")
		return false
	}
	return true
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Error().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// logReadError logs an appropriate message for the error that ended the read
// loop.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info().Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Info().Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// readPump reads frames until the connection dies, then funnels the client
// through the hub's disconnect path. That path runs the same group departure
// as an explicit leave, exactly once.
func (c *Client) readPump() {
	defer func() {
		c.hub.notifyDisconnect(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error().Err(err).Msg("error closing connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}
		c.handleEvent(raw)
	}
}

// writePump drains the send buffer to the wire and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeFrame(frame, ok) {
				return
			}
		case <-ticker.C:
			if !c.ping() {
				return
			}
		}
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Error().Err(err).Msg("error closing connection in writePump")
	}
}

// writeFrame writes one outbound frame, plus anything else already queued,
// and reports whether the pump should continue.
func (c *Client) writeFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		// Hub closed the send channel.
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Error().Err(err).Msg("error writing close message")
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Error().Err(err).Msg("error creating writer")
		return false
	}
	if _, err := w.Write(frame); err != nil {
		c.log.Error().Err(err).Msg("error writing frame")
		return false
	}

	// Flush whatever else is already queued, one frame per WebSocket message
	// so the client-side parser sees whole envelopes.
	queued := len(c.send)
	for i := 0; i < queued; i++ {
		if err := w.Close(); err != nil {
			c.log.Error().Err(err).Msg("error closing writer")
			return false
		}
		w, err = c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			c.log.Error().Err(err).Msg("error creating writer")
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.log.Error().Err(err).Msg("error writing queued frame")
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Error().Err(err).Msg("error closing writer")
		return false
	}
	return true
}

// ping sends a keepalive ping.
func (c *Client) ping() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Error().Err(err).Msg("error writing ping message")
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
