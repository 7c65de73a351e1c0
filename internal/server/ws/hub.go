// Package ws relays signal-bus events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// relayed maps bus channels to the envelope type clients see.
var relayed = map[string]string{
	domain.ChannelTrade: "trade",
	domain.ChannelCycle: "cycle",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

var errInvalidPayload = errors.New("ws: bus payload is not valid JSON")

// envelope is the frame every client receives.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Config is the engine metadata sent in the greeting frame.
type Config struct {
	Mode      string
	Pairs     int
	StartedAt time.Time
}

// Hub fans trade and cycle events out to connected dashboards.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger
	meta   Config

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub bridging bus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws_hub")),
		meta:    cfg,
		clients: make(map[*client]struct{}),
	}
}

// Run relays the bus until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for channel, kind := range relayed {
		g.Go(func() error { return h.relay(gctx, channel, kind) })
	}
	err := g.Wait()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if err != nil {
		return err
	}
	return ctx.Err()
}

func (h *Hub) relay(ctx context.Context, channel, kind string) error {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("ws: subscribe %s: %w", channel, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", channel))
				return nil
			}
			frame, err := wrap(kind, data)
			if err != nil {
				h.logger.Warn("dropping bus payload",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			h.broadcast(kind, frame)
		}
	}
}

func (h *Hub) broadcast(kind string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(kind) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("client too slow, frame dropped", slog.String("type", kind))
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("client disconnected", slog.Int("clients", len(h.clients)))
}

// wrap puts a bus payload into the client envelope. Payloads must be JSON.
func wrap(kind string, data []byte) ([]byte, error) {
	if !json.Valid(data) {
		return nil, errInvalidPayload
	}
	return json.Marshal(envelope{Type: kind, Data: data})
}

// greeting is the status frame queued ahead of any relayed event.
func (h *Hub) greeting() []byte {
	data, _ := json.Marshal(map[string]any{
		"mode":           h.meta.Mode,
		"pairs":          h.meta.Pairs,
		"uptime_seconds": max(int64(time.Since(h.meta.StartedAt).Seconds()), 0),
	})
	frame, _ := json.Marshal(envelope{Type: "status", Data: data})
	return frame
}

// HandleWS upgrades the request and subscribes the client to every
// event type.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	c.send <- h.greeting()
	if !h.add(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
