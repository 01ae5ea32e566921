// Package testhelpers provides common utilities for testing the popchat
// server: starting a test instance, dialing WebSocket connections, and
// speaking the event protocol.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/popchat/popchat/internal/server"
)

var startHubOnce sync.Once

// StartTestServer starts the application router on an httptest server backed
// by the shared hub. The server is closed when the test finishes.
func StartTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	startHubOnce.Do(server.StartHub)

	ts := httptest.NewServer(server.SetupRoutes())
	t.Cleanup(ts.Close)
	return ts
}

// Connect dials the test server's WebSocket endpoint with an allowed origin.
func Connect(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:5500")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Send writes one event envelope to the connection.
func Send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(server.Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// ReadFrame reads the next envelope from the connection, failing the test if
// nothing arrives within the timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var envelope server.Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return envelope
}

// ExpectEvent reads frames until one matching the event name arrives,
// discarding anything else along the way.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string) server.Envelope {
	t.Helper()

	for i := 0; i < 10; i++ {
		envelope := ReadFrame(t, conn)
		if envelope.Event == event {
			return envelope
		}
	}
	t.Fatalf("Did not receive %s event", event)
	return server.Envelope{}
}

// ExpectNothing asserts that no frame arrives within a short window.
func ExpectNothing(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var envelope server.Envelope
	if err := conn.ReadJSON(&envelope); err == nil {
		t.Fatalf("Expected no frame but received %s", envelope.Event)
	}
}

// DecodeAck unmarshals an envelope's data as an operation reply.
func DecodeAck(t *testing.T, envelope server.Envelope) server.AckResponse {
	t.Helper()

	var ack server.AckResponse
	if err := json.Unmarshal(envelope.Data, &ack); err != nil {
		t.Fatalf("Failed to decode ack: %v", err)
	}
	return ack
}

// DecodeEntry unmarshals an envelope's data as a log entry.
func DecodeEntry(t *testing.T, envelope server.Envelope) server.Entry {
	t.Helper()

	var entry server.Entry
	if err := json.Unmarshal(envelope.Data, &entry); err != nil {
		t.Fatalf("Failed to decode entry: %v", err)
	}
	return entry
}

// DecodeMembers unmarshals an envelope's data as a member list.
func DecodeMembers(t *testing.T, envelope server.Envelope) []string {
	t.Helper()

	var members []string
	if err := json.Unmarshal(envelope.Data, &members); err != nil {
		t.Fatalf("Failed to decode member list: %v", err)
	}
	return members
}

// CreateGroup creates a group over the connection and returns its code.
func CreateGroup(t *testing.T, conn *websocket.Conn, userName string) string {
	t.Helper()

	Send(t, conn, server.EventCreateGroup, server.CreateGroupRequest{UserName: userName})
	ack := DecodeAck(t, ExpectEvent(t, conn, server.EventCreateGroup))
	if !ack.Success {
		t.Fatalf("create-group failed: %s", ack.Message)
	}
	return ack.GroupCode
}

// JoinGroup joins a group over the connection and returns the ack.
func JoinGroup(t *testing.T, conn *websocket.Conn, userName, code string) server.AckResponse {
	t.Helper()

	Send(t, conn, server.EventJoinGroup, server.JoinGroupRequest{UserName: userName, GroupCode: code})
	return DecodeAck(t, ExpectEvent(t, conn, server.EventJoinGroup))
}
