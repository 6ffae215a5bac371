package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Hub is the websocket chat transport. Every connection belongs to one
// sender; commands read from a connection are dispatched on that
// connection's read goroutine and the reply goes back to it alone.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	responder  *Responder
	log        logrus.FieldLogger
}

type Client struct {
	hub       *Hub
	id        string
	socket    *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	sender    Sender
}

// Message is the websocket frame envelope in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandPayload is the payload of an inbound "command" message.
type CommandPayload struct {
	Text      string `json:"text"`
	MessageID int64  `json:"message_id"`
}

func NewHub(responder *Responder, log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		responder:  responder,
		log:        log,
	}
}

// Run owns client registration until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.WithFields(logrus.Fields{
				"client_id": client.id,
				"user_id":   client.sender.ID,
				"clients":   total,
			}).Info("Client registered")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.WithFields(logrus.Fields{
				"client_id": client.id,
				"user_id":   client.sender.ID,
				"clients":   total,
			}).Info("Client unregistered")

		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// RegisterClient attaches an upgraded connection for sender and starts its
// pumps. It returns nil when the hub has stopped.
func (h *Hub) RegisterClient(conn *websocket.Conn, sender Sender) *Client {
	client := &Client{
		hub:    h,
		id:     uuid.NewString(),
		socket: conn,
		send:   make(chan []byte, 256),
		closed: make(chan struct{}),
		sender: sender,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) ConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) IsSenderConnected(senderID int64) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		if client.sender.ID == senderID {
			return true
		}
	}
	return false
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("client_id", c.id).Warn("WebSocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendMessage("error", map[string]string{"error": "malformed message"})
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for {
		select {
		case message := <-c.send:
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		c.sendMessage("pong", "pong")

	case "command":
		var payload CommandPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendMessage("error", map[string]string{"error": "malformed command payload"})
			return
		}
		cmd := NewCommand(c.sender, payload.Text, payload.MessageID)
		c.sendMessage("reply", c.hub.responder.Respond(context.Background(), cmd))

	default:
		c.hub.log.WithFields(logrus.Fields{
			"client_id": c.id,
			"type":      msg.Type,
		}).Debug("Unknown message type")
		c.sendMessage("error", map[string]string{"error": "unknown message type " + msg.Type})
	}
}

func (c *Client) sendMessage(msgType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.hub.log.WithError(err).Error("Error marshaling message payload")
		return
	}
	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		c.hub.log.WithError(err).Error("Error marshaling message")
		return
	}

	select {
	case <-c.closed:
	case c.send <- data:
	default:
		c.hub.log.WithField("client_id", c.id).Warn("Client send buffer full, closing connection")
		c.close()
	}
}
