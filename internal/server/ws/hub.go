// Package ws streams comparison run events from the signal bus to WebSocket
// clients, as JSON text frames or protobuf (structpb) binary frames.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 64
)

// Frame encodings a client can ask for with ?encoding=.
const (
	EncodingJSON  = "json"
	EncodingProto = "proto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks are left to the CORS and auth middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// frame is one event ready in both encodings.
type frame struct {
	json  []byte
	proto []byte
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan frame
	encoding string
}

// Hub relays every message published on its bus channels to all clients.
type Hub struct {
	bus        domain.SignalBus
	channels   []string
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan frame
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a hub relaying the given bus channels.
func NewHub(bus domain.SignalBus, channels []string, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		channels:   channels,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan frame, 64),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run subscribes to the bus and serves client registration and broadcast
// until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for _, ch := range h.channels {
		go h.relay(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("clients", n), slog.String("encoding", c.encoding))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("clients", n))

		case f := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- f:
				default:
					h.logger.Warn("dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards one bus channel into the broadcast loop.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("subscribe failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	h.logger.Info("subscribed", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("subscription closed", slog.String("channel", channel))
				return
			}
			f, err := newFrame(data)
			if err != nil {
				h.logger.Warn("dropping malformed event", slog.String("channel", channel), slog.String("error", err.Error()))
				continue
			}
			select {
			case h.broadcast <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

// newFrame validates a JSON object payload and pre-encodes its protobuf form.
func newFrame(data []byte) (frame, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return frame{}, err
	}
	st, err := structpb.NewStruct(obj)
	if err != nil {
		return frame{}, err
	}
	bin, err := proto.Marshal(st)
	if err != nil {
		return frame{}, err
	}
	return frame{json: data, proto: bin}, nil
}

// HandleWS upgrades the request and registers the client.
// GET /ws?encoding=json|proto
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	enc := r.URL.Query().Get("encoding")
	if enc == "" {
		enc = EncodingJSON
	}
	if enc != EncodingJSON && enc != EncodingProto {
		http.Error(w, `{"error":"encoding must be json or proto"}`, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan frame, sendBufferSize), encoding: enc}
	c.sendHello()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// sendHello queues a status frame so clients see a live connection before
// the first comparison arrives.
func (c *client) sendHello() {
	data, err := json.Marshal(map[string]any{
		"type": "hub_status",
		"payload": map[string]any{
			"channels":       c.hub.channels,
			"encoding":       c.encoding,
			"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
		},
	})
	if err != nil {
		return
	}
	f, err := newFrame(data)
	if err != nil {
		return
	}
	select {
	case c.send <- f:
	default:
	}
}

// readPump discards client messages and keeps the read deadline fresh.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
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
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msgType, payload := websocket.TextMessage, f.json
			if c.encoding == EncodingProto {
				msgType, payload = websocket.BinaryMessage, f.proto
			}
			if err := c.conn.WriteMessage(msgType, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
