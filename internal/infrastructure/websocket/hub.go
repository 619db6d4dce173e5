// Package websocket streams execution/node lifecycle events to subscribed
// browser clients, as one concrete implementation of the §6 middleware
// contract — it never transforms data, only observes it.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Event is the wire shape broadcast to subscribed clients.
type Event struct {
	Type        string         `json:"type"`
	ExecutionID string         `json:"execution_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	NodeKey     string         `json:"node_key,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type broadcastMsg struct {
	executionID string
	event       *Event
}

// Hub manages WebSocket connections and fans out broadcast events to the
// clients subscribed to a given execution_id.
type Hub struct {
	clients       map[*Client]bool
	byExecutionID map[string]map[*Client]bool
	register      chan *Client
	unregister    chan *Client
	broadcast     chan *broadcastMsg
	log           zerolog.Logger
	mu            sync.RWMutex
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		byExecutionID: make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *broadcastMsg, 256),
		log:           log,
	}
}

// Run drives the hub's event loop; call it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			if h.byExecutionID[c.executionID] == nil {
				h.byExecutionID[c.executionID] = make(map[*Client]bool)
			}
			h.byExecutionID[c.executionID][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				delete(h.byExecutionID[c.executionID], c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.byExecutionID[msg.executionID] {
				select {
				case c.send <- msg.event:
				default:
					h.log.Warn().Str("client_id", c.id).Msg("dropping event, client send buffer full")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast fans event out to every client subscribed to executionID.
func (h *Hub) Broadcast(executionID string, event *Event) {
	select {
	case h.broadcast <- &broadcastMsg{executionID: executionID, event: event}:
	default:
		h.log.Warn().Str("execution_id", executionID).Msg("dropping event, hub broadcast buffer full")
	}
}

// Register admits conn as a subscriber of executionID's events.
func (h *Hub) Register(id, executionID string, conn *websocket.Conn) *Client {
	c := &Client{hub: h, conn: conn, send: make(chan *Event, sendBufferSize), id: id, executionID: executionID}
	h.register <- c
	return c
}

// Client is one subscribed WebSocket connection.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan *Event
	id          string
	executionID string
}

// Serve starts the client's read/write pumps; blocks until the connection
// closes. Call it in its own goroutine per accepted connection.
func (c *Client) Serve() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
