package websockets

import (
	"context"
	"sync"
	"time"

	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	MESSAGE_TYPE_PING      = "ping"
	MESSAGE_TYPE_PONG      = "pong"
	MESSAGE_TYPE_WELCOME   = "welcome"
	MESSAGE_TYPE_TELEMETRY = "telemetry"
	MESSAGE_TYPE_ERROR     = "error"
	PING_INTERVAL          = 30 * time.Second
	PONG_TIMEOUT           = 60 * time.Second
	WRITE_TIMEOUT          = 10 * time.Second
	MAX_MESSAGE_SIZE       = 4 * 1024 // clients only send pings
	SEND_CHANNEL_SIZE      = 64
	BROADCAST_BUFFER_SIZE  = 256
	// Channels
	TELEMETRY_CHANNEL = "telemetry"
	SYSTEM_CHANNEL    = "system"
)

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Channel   string         `json:"channel,omitempty"`
	Action    string         `json:"action,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Client is one live-feed subscriber. Kind limits the feed to one log kind; empty means all.
type Client struct {
	ID         string
	Kind       types.LogKind
	Connection *websocket.Conn
	Manager    *Manager
	send       chan Message
}

// Manager owns the hub and turns telemetry events into websocket messages
type Manager struct {
	hub       *Hub
	log       logger.Logger
	done      chan struct{}
	closeOnce sync.Once
}

func New() *Manager {
	log := logger.New("websockets")

	manager := &Manager{
		hub: &Hub{
			broadcast:  make(chan Message, BROADCAST_BUFFER_SIZE),
			register:   make(chan *Client),
			unregister: make(chan *Client),
			clients:    make(map[string]*Client),
		},
		log:  log,
		done: make(chan struct{}),
	}

	log.Function("New").Info("Starting websocket hub")
	go manager.hub.run(manager)

	return manager
}

// Close stops the hub and disconnects every client
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

// ClientCount returns the number of connected subscribers
func (m *Manager) ClientCount() int {
	m.hub.mutex.RLock()
	defer m.hub.mutex.RUnlock()
	return len(m.hub.clients)
}

// Consume broadcasts every event until ctx is done or events is closed
func (m *Manager) Consume(ctx context.Context, events <-chan types.TelemetryEvent) {
	log := m.log.Function("Consume")
	log.Info("Starting telemetry feed")

	for {
		select {
		case <-ctx.Done():
			log.Info("Telemetry feed stopped")
			return
		case <-m.done:
			return
		case event, ok := <-events:
			if !ok {
				log.Info("Telemetry source closed")
				return
			}
			m.BroadcastTelemetry(event)
		}
	}
}

// BroadcastTelemetry queues event for every subscriber of its kind
func (m *Manager) BroadcastTelemetry(event types.TelemetryEvent) {
	m.BroadcastMessage(Message{
		ID:      uuid.New().String(),
		Type:    MESSAGE_TYPE_TELEMETRY,
		Channel: TELEMETRY_CHANNEL,
		Action:  string(event.Kind),
		Data: map[string]any{
			"kind":   event.Kind,
			"record": event.Record,
		},
		Timestamp: time.Now(),
	})
}

func (m *Manager) BroadcastMessage(message Message) {
	log := m.log.Function("BroadcastMessage")

	select {
	case m.hub.broadcast <- message:
	case <-m.done:
	default:
		log.Warn("Broadcast channel is full, dropping message", "messageID", message.ID)
	}
}

func (m *Manager) HandleWebSocket(c *websocket.Conn, kind types.LogKind) {
	log := m.log.Function("HandleWebSocket")

	client := &Client{
		ID:         uuid.New().String(),
		Kind:       kind,
		Connection: c,
		Manager:    m,
		send:       make(chan Message, SEND_CHANNEL_SIZE),
	}

	if !m.register(client) {
		_ = c.Close()
		return
	}

	client.trySend(Message{
		ID:        uuid.New().String(),
		Type:      MESSAGE_TYPE_WELCOME,
		Channel:   SYSTEM_CHANNEL,
		Action:    "subscribed",
		Data:      map[string]any{"clientId": client.ID, "kind": kind},
		Timestamp: time.Now(),
	})

	log.Info("Client subscribed to telemetry feed", "clientID", client.ID, "kind", kind)
	defer func() {
		m.unregister(client)
		if err := c.Close(); err != nil {
			log.Debug("Connection already closed", "clientID", client.ID)
		}
	}()

	go client.readPump()
	client.writePump()
}

func (m *Manager) register(client *Client) bool {
	select {
	case m.hub.register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.hub.unregister <- client:
	case <-m.done:
	}
}

func (c *Client) readPump() {
	log := c.Manager.log.Function("readPump")
	defer func() {
		c.Manager.unregister(c)
		_ = c.Connection.Close()
	}()

	c.Connection.SetReadLimit(MAX_MESSAGE_SIZE)
	if err := c.Connection.SetReadDeadline(time.Now().Add(PONG_TIMEOUT)); err != nil {
		log.Er("failed to set read deadline", err, "clientID", c.ID)
	}
	c.Connection.SetPongHandler(func(string) error {
		if err := c.Connection.SetReadDeadline(time.Now().Add(PONG_TIMEOUT)); err != nil {
			log.Er("failed to set read deadline in pong handler", err, "clientID", c.ID)
		}
		return nil
	})

	for {
		var message Message
		if err := c.Connection.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				log.Er("Unexpected close error", err, "clientID", c.ID)
			}
			return
		}

		c.routeMessage(message)
	}
}

func (c *Client) routeMessage(message Message) {
	log := c.Manager.log.Function("routeMessage")

	switch message.Type {
	case MESSAGE_TYPE_PING:
		c.trySend(Message{
			ID:        uuid.New().String(),
			Type:      MESSAGE_TYPE_PONG,
			Channel:   SYSTEM_CHANNEL,
			Timestamp: time.Now(),
		})
	default:
		log.Debug("Ignoring client message", "clientID", c.ID, "type", message.Type)
		c.trySend(Message{
			ID:        uuid.New().String(),
			Type:      MESSAGE_TYPE_ERROR,
			Channel:   SYSTEM_CHANNEL,
			Action:    "unsupported",
			Data:      map[string]any{"reason": "the telemetry feed is read-only"},
			Timestamp: time.Now(),
		})
	}
}

func (c *Client) trySend(message Message) {
	defer func() {
		// send is closed once the hub drops the client
		_ = recover()
	}()

	select {
	case c.send <- message:
	default:
	}
}

func (c *Client) writePump() {
	log := c.Manager.log.Function("writePump")

	ticker := time.NewTicker(PING_INTERVAL)
	defer func() {
		ticker.Stop()
		_ = c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.Connection.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT)); err != nil {
				log.Er("failed to set write deadline", err, "clientID", c.ID)
			}
			if !ok {
				_ = c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Connection.WriteJSON(message); err != nil {
				log.Er("WebSocket write error", err, "clientID", c.ID, "messageID", message.ID)
				return
			}

		case <-ticker.C:
			if err := c.Connection.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT)); err != nil {
				log.Er("failed to set write deadline for ping", err, "clientID", c.ID)
			}
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
