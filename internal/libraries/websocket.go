package libraries

import (
	"encoding/json"
	"sync"

	applog "design-studio/internal/log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type WebSocketMessageType string

const (
	WebSocketMessageTypePing        WebSocketMessageType = "ping"
	WebSocketMessageTypePong        WebSocketMessageType = "pong"
	WebSocketMessageTypeError       WebSocketMessageType = "error"
	WebSocketMessageTypeSubscribe   WebSocketMessageType = "subscribe"
	WebSocketMessageTypeDesignSaved WebSocketMessageType = "design_saved"
)

type WebSocketMessage struct {
	Type WebSocketMessageType `json:"type"`
	Data interface{}          `json:"data,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type SubscribePayload struct {
	DesignID string `json:"design_id"`
}

// DesignSavedPayload tells editors of a design that a newer version is stored.
type DesignSavedPayload struct {
	DesignID string `json:"design_id"`
	Version  int    `json:"version"`
}

// Client is one websocket connection, following at most one design.
type Client struct {
	ID       string
	DesignID string
	Conn     *websocket.Conn
	Send     chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues msg unless the client is closed or its buffer is full.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

type subscription struct {
	client   *Client
	designID string
}

type designEvent struct {
	designID string
	message  []byte
}

type Hub struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	subscribe  chan subscription
	broadcast  chan designEvent
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		broadcast:  make(chan designEvent, 64),
		quit:       make(chan struct{}),
	}
}

// Run owns the client set until Stop is called.
func (h *Hub) Run() {
	log := applog.WithComponent("ws")
	for {
		select {
		case client := <-h.Register:
			h.clients[client.ID] = client
		case client := <-h.Unregister:
			if _, exists := h.clients[client.ID]; exists {
				delete(h.clients, client.ID)
				client.close()
			}
		case sub := <-h.subscribe:
			if c, ok := h.clients[sub.client.ID]; ok {
				c.DesignID = sub.designID
			}
		case ev := <-h.broadcast:
			for _, client := range h.clients {
				if client.DesignID != ev.designID {
					continue
				}
				if !client.trySend(ev.message) {
					log.Warn("dropping message for slow client", "client_id", client.ID)
				}
			}
		case <-h.quit:
			for id, client := range h.clients {
				delete(h.clients, id)
				client.close()
			}
			return
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Join registers client. It reports false once the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Leave unregisters client; after Stop it returns at once.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.quit:
	}
}

// PublishDesignSaved notifies every client following designID.
func (h *Hub) PublishDesignSaved(designID string, version int) {
	msg, err := json.Marshal(WebSocketMessage{
		Type: WebSocketMessageTypeDesignSaved,
		Data: &DesignSavedPayload{DesignID: designID, Version: version},
	})
	if err != nil {
		applog.WithComponent("ws").Error("failed to marshal design_saved", "error", err)
		return
	}
	select {
	case h.broadcast <- designEvent{designID: designID, message: msg}:
	case <-h.quit:
	}
}

func (h *Hub) Subscribe(client *Client, designID string) {
	select {
	case h.subscribe <- subscription{client: client, designID: designID}:
	case <-h.quit:
	}
}

// SendMessage queues message for client without blocking. Closed clients are skipped.
func (h *Hub) SendMessage(client *Client, message []byte) {
	client.trySend(message)
}

// SendErrorMessage sends a standardized error message to a client
func SendErrorMessage(hub *Hub, client *Client, errorMsg string) {
	sendMessage(hub, client, WebSocketMessage{Type: WebSocketMessageTypeError, Data: &ErrorPayload{Message: errorMsg}})
}

func sendMessage(hub *Hub, client *Client, m WebSocketMessage) {
	b, err := json.Marshal(m)
	if err != nil {
		applog.WithComponent("ws").Error("failed to marshal message", "type", m.Type, "error", err)
		return
	}
	hub.SendMessage(client, b)
}

// parseWebSocketMessage parses an incoming message, decoding known payloads
func parseWebSocketMessage(msg []byte) (*WebSocketMessage, error) {
	var rawMessage struct {
		Type WebSocketMessageType `json:"type"`
		Data json.RawMessage      `json:"data,omitempty"`
	}
	if err := json.Unmarshal(msg, &rawMessage); err != nil {
		return nil, err
	}

	message := &WebSocketMessage{Type: rawMessage.Type}
	if len(rawMessage.Data) > 0 && rawMessage.Type == WebSocketMessageTypeSubscribe {
		var sub SubscribePayload
		if err := json.Unmarshal(rawMessage.Data, &sub); err != nil {
			return nil, err
		}
		message.Data = &sub
	}
	return message, nil
}

// handleMessage answers one client message.
func handleMessage(hub *Hub, client *Client, msg []byte) {
	message, err := parseWebSocketMessage(msg)
	if err != nil {
		SendErrorMessage(hub, client, "Invalid JSON format")
		return
	}
	switch message.Type {
	case WebSocketMessageTypePing:
		sendMessage(hub, client, WebSocketMessage{Type: WebSocketMessageTypePong})
	case WebSocketMessageTypeSubscribe:
		sub, ok := message.Data.(*SubscribePayload)
		if !ok || sub.DesignID == "" {
			SendErrorMessage(hub, client, "Design ID is required")
			return
		}
		hub.Subscribe(client, sub.DesignID)
	default:
		SendErrorMessage(hub, client, "Type is invalid or not provided")
	}
}

// WebSocketHandler serves /ws?designId=... connections.
func WebSocketHandler(hub *Hub) fiber.Handler {
	log := applog.WithComponent("ws")
	return websocket.New(func(conn *websocket.Conn) {
		client := &Client{
			ID:       uuid.NewString(),
			DesignID: conn.Query("designId"),
			Conn:     conn,
			Send:     make(chan []byte, 256),
		}

		if !hub.Join(client) {
			return
		}

		// Write loop
		go func() {
			defer conn.Close()
			for msg := range client.Send {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					log.Debug("write error", "client_id", client.ID, "error", err)
					return
				}
			}
		}()

		// Read loop
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Debug("read error", "client_id", client.ID, "error", err)
				break
			}
			handleMessage(hub, client, msg)
		}

		hub.Leave(client)
	})
}
