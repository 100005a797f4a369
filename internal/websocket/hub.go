package reservationws

import (
	"context"
	"encoding/json"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
)

const (
	EventReservationConfirmed = "reservation.confirmed"
	eventError                = "error"
	eventPong                 = "pong"
)

// Hub pushes reservation events to connected admin dashboards.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event
	done       chan struct{}
	logger     zerolog.Logger
	now        func() time.Time
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	username string
	send     chan []byte
}

type Event struct {
	Type          string `json:"type"`
	ReservationID string `json:"reservation_id,omitempty"`
	Message       string `json:"message,omitempty"`
	Timestamp     string `json:"timestamp"`
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 64),
		done:       make(chan struct{}),
		logger:     logger,
		now:        time.Now,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, username string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		username: username,
		send:     make(chan []byte, 32),
	}
}

// Run serves registrations and broadcasts until ctx is done. It must be
// called once. On exit every connected client's send channel is closed, which
// ends its write pump and closes the connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Debug().Str("username", client.username).Msg("admin feed connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// Register adds client to the feed. Once the hub has stopped the client is
// closed straight away instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister never blocks after the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// OnReservationConfirmed queues the event for every connected dashboard. It
// drops the event rather than block when the queue is full.
func (h *Hub) OnReservationConfirmed(_ context.Context, reservationID string) {
	event := &Event{
		Type:          EventReservationConfirmed,
		ReservationID: reservationID,
		Timestamp:     h.now().UTC().Format(time.RFC3339),
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Str("reservation_id", reservationID).Msg("admin feed queue full, event dropped")
	}
}

func (h *Hub) deliver(event *Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("admin feed encode event")
		return
	}

	for client := range h.clients {
		select {
		case client.send <- encoded:
		default:
			h.logger.Warn().Str("username", client.username).Msg("admin feed client too slow, event skipped")
		}
	}
}

// ReadPump keeps the connection open until the dashboard goes away. The only
// inbound message understood is a ping.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil || incoming.Type != "ping" {
			c.write(eventError, "unsupported message")
			continue
		}
		c.write(eventPong, "")
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) write(eventType, message string) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Message:   message,
		Timestamp: c.hub.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}
