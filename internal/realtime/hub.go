package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Event types sent over WebSocket
const (
	EventNewNotification   = "new_notification"
	EventNotificationBatch = "notification_batch"
	EventNotificationRead  = "notification_read"
	EventPong              = "pong"
)

// Event is the JSON frame sent to connected clients
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Channel names. User channels receive individual notifications; tenant and
// store channels are joinable but currently carry only batch announcements.
func UserChannel(id uuid.UUID) string   { return "user:" + id.String() }
func TenantChannel(id uuid.UUID) string { return "tenant:" + id.String() }
func StoreChannel(id uuid.UUID) string  { return "store:" + id.String() }

// sendBuffer is the per-connection outbound queue depth. A connection that
// falls this far behind is closed; the notification table is its catch-up.
const sendBuffer = 32

// Sink is the transport half of a connection. The gateway adapts
// *websocket.Conn to it; tests substitute their own.
type Sink interface {
	WriteText(data []byte) error
	Close() error
}

// Conn is a registered connection. A dedicated writer goroutine drains send,
// so a slow reader never blocks Publish.
type Conn struct {
	sink Sink
	send chan []byte
	quit chan struct{}
	once sync.Once
}

// Close shuts the connection down. Safe to call from any goroutine, any
// number of times.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.quit) })
}

// Send queues an event for this connection only.
func (c *Conn) Send(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("WS send marshal error: %v", err)
		return
	}
	c.enqueue(msg)
}

func (c *Conn) enqueue(msg []byte) {
	select {
	case <-c.quit:
	case c.send <- msg:
	default:
		// Buffer full: the consumer is stalled. Disconnect rather than
		// let it wedge the hub.
		log.Printf("WS: dropping slow connection (buffer full)")
		c.Close()
	}
}

func (c *Conn) writePump() {
	defer c.sink.Close()
	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.send:
			if err := c.sink.WriteText(msg); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Hub is the process-wide channel registry: connections join named channels,
// Publish fans out to everything currently joined. At-most-once, no replay.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Conn]bool
	bridge   *Bridge
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*Conn]bool),
	}
}

// Register wraps a sink in a Conn and starts its writer.
func (h *Hub) Register(sink Sink) *Conn {
	c := &Conn{
		sink: sink,
		send: make(chan []byte, sendBuffer),
		quit: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Join adds a connection to a channel
func (h *Hub) Join(channel string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Conn]bool)
	}
	h.channels[channel][c] = true
	log.Printf("WS join: %s (total: %d)", channel, len(h.channels[channel]))
}

// Leave removes a connection from a channel
func (h *Hub) Leave(channel string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.channels[channel]; ok {
		delete(conns, c)
		log.Printf("WS leave: %s (remaining: %d)", channel, len(conns))
		if len(conns) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Publish sends an event to every connection joined to the channel. Best
// effort: marshal failures and slow consumers are logged, never surfaced.
func (h *Hub) Publish(channel string, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("WS publish marshal error: %v", err)
		return
	}
	h.deliver(channel, msg)
	if h.bridge != nil {
		go h.bridge.forward(channel, msg)
	}
}

// deliver fans a pre-marshaled frame out locally.
func (h *Hub) deliver(channel string, msg []byte) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.channels[channel]))
	for c := range h.channels[channel] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(msg)
	}
}
