package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/config"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/logging"
	"github.com/nerrad567/smart-watering-core/internal/ingest"
)

// WebSocket frame types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound frame buffer.
	wsSendBufferSize = 256
)

// eventChannels are the channels a client may subscribe to.
var eventChannels = map[string]struct{}{
	ingest.ChannelReadingReceived:         {},
	automation.ChannelRuleTriggered:       {},
	automation.ChannelDeviceStatusChanged: {},
}

// WSMessage is an outbound frame.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// WSRequest is an inbound frame. Subscribing with no channels selects all
// of them.
type WSRequest struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// Hub fans events out to the WebSocket clients of one owner.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	owners  map[string]map[*WSClient]struct{}
	count   int
	dropped atomic.Uint64
}

// WSClient is one connected dashboard.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	ownerID  string
	send     chan []byte
	mu       sync.RWMutex
	channels map[string]struct{}
	closed   bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		owners: make(map[string]map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client under its owner.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	set, ok := h.owners[c.ownerID]
	if !ok {
		set = make(map[*WSClient]struct{})
		h.owners[c.ownerID] = set
	}
	if _, dup := set[c]; !dup {
		set[c] = struct{}{}
		h.count++
	}
	n := h.count
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "owner_id", c.ownerID, "clients", n)
}

// Unregister removes a client and closes its send buffer. Repeated calls
// are no-ops.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	set := h.owners[c.ownerID]
	_, existed := set[c]
	if existed {
		delete(set, c)
		h.count--
		if len(set) == 0 {
			delete(h.owners, c.ownerID)
		}
	}
	n := h.count
	h.mu.Unlock()

	if existed {
		c.closeSend()
		h.logger.Debug("websocket client disconnected", "owner_id", c.ownerID, "clients", n)
	}
}

// Broadcast sends payload on channel to the owner's clients subscribed to
// it. Frames for clients with a full buffer are dropped.
func (h *Hub) Broadcast(ownerID, channel string, payload any) {
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.owners[ownerID]))
	for c := range h.owners[ownerID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "channel", channel, "error", err)
		return
	}

	for _, c := range targets {
		if !c.isSubscribed(channel) {
			continue
		}
		if !c.trySend(data) {
			h.dropped.Add(1)
			h.logger.Debug("websocket client too slow, event dropped", "owner_id", ownerID, "channel", channel)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// DroppedCount returns how many event frames were dropped for slow clients.
func (h *Hub) DroppedCount() uint64 {
	return h.dropped.Load()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	owners := h.owners
	h.owners = make(map[string]map[*WSClient]struct{})
	h.count = 0
	h.mu.Unlock()

	for _, set := range owners {
		for c := range set {
			c.closeSend()
			if c.conn != nil {
				c.conn.Close()
			}
		}
	}
}

// newWSClient builds a client subscribed to channels.
func newWSClient(hub *Hub, conn *websocket.Conn, ownerID string, channels []string) *WSClient {
	c := &WSClient{
		hub:      hub,
		conn:     conn,
		ownerID:  ownerID,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}, len(channels)),
	}
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	return c
}

// parseChannels validates a channel list. An empty list selects every
// channel.
func parseChannels(channels []string) ([]string, error) {
	if len(channels) == 0 {
		all := make([]string, 0, len(eventChannels))
		for ch := range eventChannels {
			all = append(all, ch)
		}
		sort.Strings(all)
		return all, nil
	}
	for _, ch := range channels {
		if _, ok := eventChannels[ch]; !ok {
			return nil, fmt.Errorf("unknown channel %q", ch)
		}
	}
	return channels, nil
}

// handleWebSocket upgrades the request to a WebSocket bound to the calling
// owner. An optional channels query parameter (comma separated) subscribes
// the client up front.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var initial []string
	if v := r.URL.Query().Get("channels"); v != "" {
		requested := strings.Split(v, ",")
		for i := range requested {
			requested[i] = strings.TrimSpace(requested[i])
		}
		var err error
		if initial, err = parseChannels(requested); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, ownerID(r), initial)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "owner_id", c.ownerID, "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handleRequest(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleRequest(data []byte) {
	var req WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(WSTypeError, "", map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		channels, err := parseChannels(req.Channels)
		if err != nil {
			c.reply(WSTypeError, req.ID, map[string]string{"message": err.Error()})
			return
		}
		c.update(req.Type == WSTypeSubscribe, channels)
		c.reply(WSTypeResponse, req.ID, map[string]any{"channels": c.subscriptions()})
	case WSTypePing:
		c.reply(WSTypePong, req.ID, nil)
	default:
		c.reply(WSTypeError, req.ID, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

func (c *WSClient) update(add bool, channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
}

// subscriptions returns the client's channels, sorted.
func (c *WSClient) subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// trySend queues data without blocking. It reports false when the buffer
// is full; frames for a closed client are discarded.
func (c *WSClient) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(msgType, id string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}
