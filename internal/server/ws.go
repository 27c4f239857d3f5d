package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/gorilla/websocket"

	"OpsPulse/internal/biz"
	"OpsPulse/internal/conf"
	"OpsPulse/internal/model"
)

// channelFrames maps relay channels to the frame type clients receive.
var channelFrames = map[string]string{
	model.ChannelHealthUpdates: model.FrameHealthUpdate,
	model.ChannelIncidents:     model.FrameIncidentUpdate,
	model.ChannelAnalytics:     model.FrameAnalyticsUpdate,
	model.ChannelErrorLogs:     model.FrameErrorLog,
}

// clientRequest is what clients may send upstream: subscription changes
// and keepalive pings. Anything else is ignored.
type clientRequest struct {
	Type          string   `json:"type"`
	Subscriptions []string `json:"subscriptions,omitempty"`
}

// wsClient is one connected WebSocket peer. Frames flow through a bounded
// send queue so one stalled peer never blocks a broadcast.
type wsClient struct {
	conn *websocket.Conn
	send chan model.Frame

	mu       sync.Mutex
	subs     map[string]struct{}
	failures int
	closed   bool
}

// enqueue attempts a non-blocking send. It reports whether the frame was
// accepted; a closed client silently accepts to keep callers simple.
func (c *wsClient) enqueue(frame model.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		c.failures = 0
		return true
	default:
		c.failures++
		return false
	}
}

// shutdown closes the send queue exactly once. Callers must have already
// unregistered the client.
func (c *wsClient) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

// wants reports whether the client's subscription set admits the frame.
// An empty set means all frames.
func (c *wsClient) wants(frameType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[frameType]
	return ok
}

func (c *wsClient) subscribe(events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = make(map[string]struct{})
	}
	for _, e := range events {
		c.subs[e] = struct{}{}
	}
}

func (c *wsClient) unsubscribe(events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range events {
		delete(c.subs, e)
	}
}

// BroadcastHub fans relay messages out to WebSocket clients. It consumes
// all relay channels once per process, regardless of how many clients are
// connected.
type BroadcastHub struct {
	monitor *biz.HealthMonitorUsecase
	relay   biz.Relay
	log     *log.Helper

	upgrader    websocket.Upgrader
	sendTimeout time.Duration
	queueSize   int
	maxFailures int

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func NewBroadcastHub(c *conf.Broadcast, monitor *biz.HealthMonitorUsecase, relay biz.Relay, logger log.Logger) *BroadcastHub {
	return &BroadcastHub{
		monitor: monitor,
		relay:   relay,
		log:     log.NewHelper(log.With(logger, "module", "server/ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sendTimeout: c.SendTimeout.AsDuration(),
		queueSize:   int(c.SendQueueSize),
		maxFailures: int(c.MaxSendFailures),
		clients:     make(map[*wsClient]struct{}),
	}
}

// Start wires the hub into the relay. Must be called once before serving.
func (h *BroadcastHub) Start(ctx context.Context) error {
	channels := make([]string, 0, len(channelFrames))
	for ch := range channelFrames {
		channels = append(channels, ch)
	}
	return h.relay.Subscribe(ctx, h.onRelayMessage, channels...)
}

func (h *BroadcastHub) onRelayMessage(channel string, payload []byte) {
	frameType, ok := channelFrames[channel]
	if !ok {
		return
	}
	var data json.RawMessage
	if err := json.Unmarshal(payload, &data); err != nil {
		h.log.Warnw("msg", "dropping malformed relay payload", "channel", channel, "error", err)
		return
	}
	h.Broadcast(model.NewFrame(frameType, data))
}

// Broadcast enqueues the frame for every subscribed client. Clients whose
// queue is full accumulate failures and are dropped past the limit.
func (h *BroadcastHub) Broadcast(frame model.Frame) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.wants(frame.Type) {
			continue
		}
		if !c.enqueue(frame) {
			c.mu.Lock()
			drop := c.failures >= h.maxFailures
			c.mu.Unlock()
			if drop {
				h.log.Warnw("msg", "dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
				h.remove(c)
			}
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *BroadcastHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and serves it until the peer leaves.
func (h *BroadcastHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("msg", "websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan model.Frame, h.queueSize),
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("msg", "websocket client connected", "remote", conn.RemoteAddr().String(), "clients", total)

	// The snapshot goes through the queue so ordering with live updates
	// is preserved.
	client.enqueue(model.NewFrame(model.FrameInitialStatus, map[string]any{
		"services": h.monitor.Records(),
		"overall":  h.monitor.Overall(),
	}))

	go h.writePump(client)
	h.readPump(client)
}

func (h *BroadcastHub) writePump(c *wsClient) {
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.sendTimeout))
		if err := c.conn.WriteJSON(frame); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

func (h *BroadcastHub) readPump(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req clientRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		switch req.Type {
		case "ping":
			c.enqueue(model.NewFrame(model.FramePong, nil))
		case "subscribe":
			subs := req.Subscriptions
			if subs == nil {
				subs = []string{model.FrameHealthUpdate}
			}
			c.subscribe(subs)
			c.enqueue(model.NewFrame(model.FrameSubscriptionConfirmed, map[string]any{
				"subscriptions": subs,
			}))
		case "unsubscribe":
			subs := req.Subscriptions
			if subs == nil {
				subs = []string{}
			}
			c.unsubscribe(subs)
			c.enqueue(model.NewFrame(model.FrameUnsubscriptionConfirmed, map[string]any{
				"subscriptions": subs,
			}))
		}
	}
}

// remove unregisters the client and tears it down exactly once.
func (h *BroadcastHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()
	if !c.shutdown() {
		return
	}
	_ = c.conn.Close()
	h.log.Infow("msg", "websocket client disconnected", "remote", c.conn.RemoteAddr().String(), "clients", total)
}
