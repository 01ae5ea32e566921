// Package server coordinates client registration, group fan-out, and
// connection cleanup for the popchat WebSocket system via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub is the connection registry and broadcast router. It tracks every live
// client connection, delivers payloads to membership snapshots, and runs the
// periodic reset of the connection-level send budgets. Registration state is
// guarded by a mutex so delivery always observes a consistent view.
type Hub struct {
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	sessions   *SessionManager
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance. The returned Hub is
// ready to accept registrations once Run is started.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's main event loop, handling client registration,
// disconnect cleanup, and the scheduled reset of per-connection send budgets.
// This method should be called in a separate goroutine as it runs until
// Shutdown is invoked.
func (h *Hub) Run() {
	defer close(h.done)

	resetTicker := time.NewTicker(currentConfig().MessageWindow())
	defer resetTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				logger.Warn().Msg("received nil client registration; skipping")
				continue
			}

			h.add(client)

			if client.conn != nil {
				h.wg.Add(2)
				go func() {
					defer h.wg.Done()
					client.writePump()
				}()
				go func() {
					defer h.wg.Done()
					client.readPump()
				}()
			}

		case client := <-h.unregister:
			h.disconnect(client)

		case <-resetTicker.C:
			h.resetLimiters()
		}
	}
}

// notifyDisconnect hands a dead connection to the hub's event loop. Once the
// hub has shut down nothing receives on unregister anymore, so the send gives
// up instead of pinning the pump goroutine past Shutdown's wait.
func (h *Hub) notifyDisconnect(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// add inserts a client into the registry.
func (h *Hub) add(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	metricActiveConnections.Inc()
	client.log.Info().Int("clients", clientCount).Msg("client registered")
}

// disconnect runs the full cleanup path for a closed transport connection.
// The group departure happens through the same session Leave path as an
// explicit leave-group event, exactly once per connection: a client already
// gone from the registry is skipped.
func (h *Hub) disconnect(client *Client) {
	h.mutex.RLock()
	_, registered := h.clients[client.id]
	h.mutex.RUnlock()
	if !registered {
		return
	}

	if h.sessions != nil {
		h.sessions.Leave(client)
	}
	h.remove(client)
}

// remove deletes a client from the registry and closes its send buffer.
func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	metricActiveConnections.Dec()
	client.log.Info().Int("clients", clientCount).Msg("client unregistered")
}

// deliver fans a payload out to the given connection snapshot. Delivery is
// fire and forget per connection: a full or closed buffer never blocks or
// fails delivery to the others and is reported only through logs and metrics.
func (h *Hub) deliver(ids []uuid.UUID, payload []byte) {
	if payload == nil {
		return
	}
	for _, id := range ids {
		h.sendTo(id, payload)
	}
}

// deliverExcluding behaves like deliver but skips one connection. Used for
// typing events so a user never receives their own typing echo.
func (h *Hub) deliverExcluding(ids []uuid.UUID, skip uuid.UUID, payload []byte) {
	if payload == nil {
		return
	}
	for _, id := range ids {
		if id == skip {
			continue
		}
		h.sendTo(id, payload)
	}
}

// sendTo enqueues a payload onto one client's send buffer. The registry lock
// is held across the send so the buffer cannot be closed mid-operation.
func (h *Hub) sendTo(id uuid.UUID, payload []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, ok := h.clients[id]
	if !ok || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		metricFramesDelivered.Inc()
		return true
	default:
		metricFramesDropped.Inc()
		client.log.Warn().Msg("send buffer full; dropping frame")
		return false
	}
}

// resetLimiters clears every connection's message-window counter. A single
// hub-owned ticker drives this so the number of timers stays constant no
// matter how many connections exist.
func (h *Hub) resetLimiters() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.limiter.reset()
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	logger.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				client.log.Error().Err(err).Msg("error closing client connection")
			}
		}
	}

	logger.Info().Int("clients", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	logger.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		logger.Warn().Msg("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

var (
	hub      = NewHub()
	sessions = NewSessionManager(hub)
)
