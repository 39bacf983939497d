// Package ws streams domain events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/alanyang/job-dispatch/internal/domain/event"
	porteventbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	// channels is the client's filter; empty means every channel.
	channels map[event.Channel]bool
}

func (c *client) wants(ch event.Channel) bool {
	return len(c.channels) == 0 || c.channels[ch]
}

// Hub fans events out to connected clients. Writes are serialised by mu because a websocket
// connection supports one concurrent writer.
type Hub struct {
	clients map[*client]struct{}
	mu      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Register(rg *gin.RouterGroup) {
	rg.GET("", h.handleWS)
}

// Bridge subscribes the hub to every event channel of bus. A channel that fails to subscribe is
// logged and skipped. The subscriptions are released once ctx is done.
func (h *Hub) Bridge(ctx context.Context, bus porteventbus.EventBus) {
	var subs []porteventbus.Subscription
	for _, ch := range event.Channels() {
		sub, err := bus.Subscribe(ctx, ch, func(_ context.Context, e event.Event) {
			h.Broadcast(e)
		})
		if err != nil {
			slog.Error("failed to subscribe channel to WS hub", "channel", ch, "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	go func() {
		<-ctx.Done()
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()
}

// handleWS upgrades the request. ?channels=job,distribution limits what the client receives.
func (h *Hub) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn, channels: parseChannels(c.Query("channels"))}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) Broadcast(e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("websocket broadcast marshal failed", "error", err)
		return
	}
	ch := event.ChannelFor(e.Type)

	h.mu.Lock()
	defer h.mu.Unlock()

	for cl := range h.clients {
		if !cl.wants(ch) {
			continue
		}
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("websocket write failed", "error", err)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func parseChannels(raw string) map[event.Channel]bool {
	if raw == "" {
		return nil
	}
	out := make(map[event.Channel]bool)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out[event.Channel(p)] = true
		}
	}
	return out
}
