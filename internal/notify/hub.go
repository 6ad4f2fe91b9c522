package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"flickd/pkg/types"
)

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
	maxCommandBytes     = 64 << 10
)

// CommandHandler handles one inbound client command. A non-nil reply is
// sent to that client only.
type CommandHandler interface {
	Handle(ctx context.Context, cmd types.Command) (reply *types.Event)
}

// HubConfig tunes a Hub. Zero values select package defaults.
type HubConfig struct {
	// SendBuffer is the per-client queue length. A client whose queue is full
	// when an event is broadcast is disconnected.
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	// CheckOrigin overrides the upgrader's origin check. nil accepts any
	// origin.
	CheckOrigin func(r *http.Request) bool
	Commands    CommandHandler
	Logger      *zerolog.Logger
}

// Hub fans events out to WebSocket clients.
type Hub struct {
	cfg      HubConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// NewHub returns a hub with no clients.
func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	check := cfg.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	h := &Hub{
		cfg:      cfg,
		log:      zerolog.Nop(),
		upgrader: websocket.Upgrader{CheckOrigin: check},
		clients:  make(map[*client]struct{}),
	}
	if cfg.Logger != nil {
		h.log = cfg.Logger.With().Str("component", "notify").Logger()
	}
	return h
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}
	h.log.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("client connected")

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)

	h.unregister(c)
	h.log.Info().Str("client", c.id).Msg("client disconnected")
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	if ok {
		h.wg.Done()
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxCommandBytes)
	for {
		var cmd types.Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("client", c.id).Msg("read failed")
			}
			return
		}
		if h.cfg.Commands == nil {
			continue
		}
		h.log.Debug().Str("client", c.id).Str("command", cmd.ID).Msg("command received")
		if reply := h.cfg.Commands.Handle(ctx, cmd); reply != nil {
			h.enqueue(c, *reply)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug().Err(err).Str("client", c.id).Msg("write failed")
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// Broadcast queues ev for every connected client. Clients that cannot keep
// up are disconnected; Broadcast never blocks on a client.
func (h *Hub) Broadcast(ev types.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.ID).Msg("encode event")
		return
	}
	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.log.Warn().Str("client", c.id).Str("event", ev.ID).Msg("client too slow, dropping")
		c.close()
	}
}

func (h *Hub) enqueue(c *client, ev types.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.ID).Msg("encode reply")
		return
	}
	select {
	case c.send <- msg:
	default:
		c.close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their handlers to return.
// Connections arriving afterwards are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
	h.wg.Wait()
}
