// Package hub pushes cache and schedule changes to dashboard clients over
// WebSocket. Clients subscribe to channels; the countdown channel drives
// the Ticker's observer lifecycle so ticking stops when nobody watches.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"masthead/internal/countdown"
	"masthead/pkg/logging"

	"github.com/gorilla/websocket"
)

// Channels clients can subscribe to.
const (
	ChannelArticles  = "articles"
	ChannelSchedule  = "schedule"
	ChannelCountdown = "countdown"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	ticker     *countdown.Ticker
	logger     logging.Logger
	onClients  func(count int)
	mutex      sync.RWMutex

	countdownMu   sync.Mutex
	countdownSubs int
	detachTicker  func()
}

// Client is one WebSocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels []string
	logger   logging.Logger
}

// Message is a real-time event sent to clients.
type Message struct {
	Type      string                 `json:"type"`
	Channel   string                 `json:"channel"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// SubscriptionMessage is a subscribe/unsubscribe request from a client.
type SubscriptionMessage struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a hub; onClients (optional) receives the client count on
// every connect and disconnect.
func NewHub(ticker *countdown.Ticker, logger logging.Logger, onClients func(count int)) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ticker:     ticker,
		logger:     logger,
		onClients:  onClients,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			if h.onClients != nil {
				h.onClients(count)
			}
			h.logger.WithFields(logging.Fields{
				"client_count": count,
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			drop := 0
			for _, ch := range client.channels {
				if ch == ChannelCountdown {
					drop++
				}
			}
			h.mutex.Unlock()
			h.releaseCountdown(drop)
			if h.onClients != nil {
				h.onClients(count)
			}
			h.logger.WithFields(logging.Fields{
				"client_count": count,
			}).Info("Client disconnected")

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// broadcastMessage fans a message out to every subscribed client.
func (h *Hub) broadcastMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal broadcast message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if !client.subscribed(msg.Channel) {
			continue
		}
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// BroadcastEvent queues an event for all clients subscribed to channel.
func (h *Hub) BroadcastEvent(eventType, channel string, data map[string]interface{}) {
	message := Message{
		Type:      eventType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- messageBytes:
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

// GetStats returns hub statistics.
func (h *Hub) GetStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	channelStats := make(map[string]int)
	for client := range h.clients {
		for _, channel := range client.channels {
			channelStats[channel]++
		}
	}

	return map[string]interface{}{
		"total_clients":         len(h.clients),
		"channel_subscriptions": channelStats,
	}
}

// acquireCountdown attaches a ticker observer when the first client
// subscribes to the countdown channel; views are forwarded as broadcasts.
func (h *Hub) acquireCountdown() {
	h.countdownMu.Lock()
	defer h.countdownMu.Unlock()

	h.countdownSubs++
	if h.countdownSubs != 1 || h.ticker == nil {
		return
	}

	views, detach := h.ticker.Attach()
	h.detachTicker = detach
	go func() {
		for view := range views {
			h.BroadcastEvent("countdown_tick", ChannelCountdown, map[string]interface{}{
				"label":   view.Label,
				"urgent":  view.Urgent,
				"next_id": view.NextID,
			})
		}
	}()
}

// releaseCountdown detaches the ticker observer once the last countdown
// subscriber is gone. Called on unsubscribe and on every disconnect path.
func (h *Hub) releaseCountdown(drop int) {
	if drop == 0 {
		return
	}

	h.countdownMu.Lock()
	defer h.countdownMu.Unlock()

	h.countdownSubs -= drop
	if h.countdownSubs <= 0 {
		h.countdownSubs = 0
		if h.detachTicker != nil {
			h.detachTicker()
			h.detachTicker = nil
		}
	}
}

// ServeWS upgrades an HTTP request to a WebSocket client connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		channels: []string{},
		logger:   h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) subscribed(channel string) bool {
	for _, ch := range c.channels {
		if ch == channel || ch == "all" {
			return true
		}
	}
	return false
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// readPump pumps messages from the WebSocket connection to the hub.
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}

		c.handleSubscription(&subMsg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush queued events into the same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleSubscription processes subscribe/unsubscribe requests. The channel
// list is read by the hub goroutine during broadcasts, so every access here
// takes the hub mutex.
func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	switch msg.Action {
	case "subscribe":
		c.hub.mutex.Lock()
		c.channels = append(c.channels, msg.Channels...)
		confirmed := append([]string(nil), c.channels...)
		c.hub.mutex.Unlock()

		for _, channel := range msg.Channels {
			if channel == ChannelCountdown {
				c.hub.acquireCountdown()
			}
		}
		c.logger.WithFields(logging.Fields{
			"channels": msg.Channels,
		}).Info("Client subscribed to channels")

		c.sendMessage(map[string]interface{}{
			"type":     "subscription_confirmed",
			"channels": confirmed,
		})

	case "unsubscribe":
		drop := 0
		c.hub.mutex.Lock()
		for _, channel := range msg.Channels {
			for i, existing := range c.channels {
				if existing == channel {
					c.channels = append(c.channels[:i], c.channels[i+1:]...)
					if channel == ChannelCountdown {
						drop++
					}
					break
				}
			}
		}
		remaining := append([]string(nil), c.channels...)
		c.hub.mutex.Unlock()
		c.hub.releaseCountdown(drop)

		c.logger.WithFields(logging.Fields{
			"unsubscribed": msg.Channels,
			"remaining":    remaining,
		}).Info("Client unsubscribed from channels")

		c.sendMessage(map[string]interface{}{
			"type":     "unsubscription_confirmed",
			"channels": remaining,
		})
	}
}

// sendMessage sends a message directly to this client. A full buffer drops
// the message; only the hub's unregister path closes the send channel.
func (c *Client) sendMessage(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal client message")
		return
	}

	select {
	case c.send <- message:
	default:
		c.logger.Warn("Client send buffer full, dropping message")
	}
}
