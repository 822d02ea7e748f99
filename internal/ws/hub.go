package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/trimline/trimline/internal/domain"
	"github.com/trimline/trimline/pkg/logger"
	"github.com/trimline/trimline/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	readLimit  = 512
	sendBuffer = 256
)

// Hub groups websocket subscribers by shop and fans queue events out to
// them. Slow subscribers are dropped rather than allowed to stall the
// broadcast loop.
type Hub struct {
	clients    map[string]map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan shopMessage

	mu    sync.Mutex
	total int
}

type shopMessage struct {
	shopID  string
	event   string
	payload []byte
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	shopID string
}

// NewHub creates a new broadcast hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan shopMessage),
	}
}

// Run drives the hub's channel loop. Call it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			if h.clients[c.shopID] == nil {
				h.clients[c.shopID] = make(map[*client]bool)
			}
			h.clients[c.shopID][c] = true
			h.trackConnections(1)

		case c := <-h.unregister:
			if subscribers, ok := h.clients[c.shopID]; ok {
				if _, ok := subscribers[c]; ok {
					delete(subscribers, c)
					close(c.send)
					h.trackConnections(-1)
					if len(subscribers) == 0 {
						delete(h.clients, c.shopID)
					}
				}
			}

		case msg := <-h.broadcast:
			for c := range h.clients[msg.shopID] {
				select {
				case c.send <- msg.payload:
					metrics.RecordEventBroadcast(msg.event)
				default:
					delete(h.clients[msg.shopID], c)
					close(c.send)
					h.trackConnections(-1)
				}
			}
		}
	}
}

// BroadcastEvent serializes the event and fans it out to the shop's
// subscribers.
func (h *Hub) BroadcastEvent(event domain.QueueEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal broadcast event",
			logger.String("event", event.Type),
			logger.ErrorField(err),
		)
		return
	}
	h.broadcast <- shopMessage{shopID: event.ShopID, event: event.Type, payload: payload}
}

func (h *Hub) trackConnections(delta int) {
	h.mu.Lock()
	h.total += delta
	total := h.total
	h.mu.Unlock()
	metrics.SetWSConnectionsActive(float64(total))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades the connection and subscribes it to the shop's
// queue events.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID := c.Param("shopId")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("Failed to upgrade websocket connection",
				logger.String("shop_id", shopID),
				logger.ErrorField(err),
			)
			return
		}

		cl := &client{
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			shopID: shopID,
		}
		h.register <- cl

		go cl.writePump()
		cl.readPump()
	}
}

// readPump watches for the peer closing the connection. Inbound
// messages are ignored.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
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

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
