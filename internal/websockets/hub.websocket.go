package websockets

import (
	"sync"
)

type Hub struct {
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	clients    map[string]*Client
	mutex      sync.RWMutex
}

func (h *Hub) run(m *Manager) {
	for {
		select {
		case client := <-h.register:
			m.registerClient(client)

		case client := <-h.unregister:
			m.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message, m)

		case <-m.done:
			h.closeAll(m)
			return
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	log := m.log.Function("registerClient")

	m.hub.mutex.Lock()
	defer m.hub.mutex.Unlock()

	m.hub.clients[client.ID] = client

	log.Info("Client registered", "clientID", client.ID, "kind", client.Kind, "clients", len(m.hub.clients))
}

// unregisterClient is idempotent: send is closed only on the first call
func (m *Manager) unregisterClient(client *Client) {
	log := m.log.Function("unregisterClient")

	m.hub.mutex.Lock()
	defer m.hub.mutex.Unlock()

	m.dropLocked(client)

	log.Info("Client unregistered", "clientID", client.ID, "clients", len(m.hub.clients))
}

// dropLocked must be called with the hub mutex held
func (m *Manager) dropLocked(client *Client) {
	if _, ok := m.hub.clients[client.ID]; !ok {
		return
	}

	delete(m.hub.clients, client.ID)
	close(client.send)
}

func (h *Hub) broadcastMessage(message Message, m *Manager) {
	log := m.log.Function("broadcastMessage")

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if len(h.clients) == 0 {
		return
	}

	sentCount := 0
	for clientID, client := range h.clients {
		if !client.wants(message) {
			continue
		}

		select {
		case client.send <- message:
			sentCount++
		default:
			log.Warn("Client too slow, disconnecting", "clientID", clientID)
			m.dropLocked(client)
		}
	}

	log.Debug("Broadcast complete", "messageID", message.ID, "sentTo", sentCount, "totalClients", len(h.clients))
}

func (h *Hub) closeAll(m *Manager) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, client := range h.clients {
		m.dropLocked(client)
	}

	m.log.Function("closeAll").Info("Websocket hub stopped")
}

func (c *Client) wants(message Message) bool {
	if message.Type != MESSAGE_TYPE_TELEMETRY || c.Kind == "" {
		return true
	}
	return message.Action == string(c.Kind)
}
