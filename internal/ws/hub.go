// Package ws is the websocket hub backing the webchat channel.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced at the HTTP layer
	},
}

// Client is one connected webchat session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

// Hub tracks connected webchat clients keyed by session id and delivers
// payloads to them.
type Hub struct {
	clients    map[*Client]bool
	bySession  map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		bySession:  make(map[string]*Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if client.sessionID != "" {
				h.bySession[client.sessionID] = client
			}
			h.mu.Unlock()
			log.WithField("session", client.sessionID).Debug("webchat client registered")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if h.bySession[client.sessionID] == client {
					delete(h.bySession, client.sessionID)
				}
				close(client.send)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					if h.bySession[client.sessionID] == client {
						delete(h.bySession, client.sessionID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// BroadcastEvent sends an event to every connected client.
func (h *Hub) BroadcastEvent(eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		log.WithError(err).Error("marshaling ws event")
		return
	}
	h.broadcast <- payload
}

// SendToSession delivers an event to the client registered under the
// session id. Returns false when no such client is connected.
func (h *Hub) SendToSession(sessionID, eventType string, data interface{}) bool {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		log.WithError(err).Error("marshaling ws event")
		return false
	}

	h.mu.RLock()
	client, ok := h.bySession[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// IsConnected reports whether a session currently has an open socket.
func (h *Hub) IsConnected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.bySession[sessionID]
	return ok
}

// ServeWs upgrades the request and registers the client under sessionID.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Error("websocket upgrade")
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), sessionID: sessionID}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		// Inbound webchat messages arrive over the HTTP chat endpoint,
		// not the socket; reads only detect disconnects.
	}
}

func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
