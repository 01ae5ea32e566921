// Package server exposes HTTP handlers: the WebSocket upgrade endpoint, the
// health check, and the static client bundle.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades the HTTP connection, creates a Client, and hands
// it to the hub; the hub launches the read/write pumps.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, hub, r.RemoteAddr)
	client.hub.register <- client
}

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "popchat server is running!")
}

// StaticHandler serves the client UI bundle from the configured directory.
// It has no interaction with group state.
func StaticHandler(dir string) http.Handler {
	return http.FileServer(http.Dir(dir))
}
