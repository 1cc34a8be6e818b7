// Package gateway serves live signal updates to websocket clients.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coinsignal/internal/metrics"
	"coinsignal/internal/model"
)

// Hub manages websocket clients and the latest signal envelope per symbol.
// It implements model.SignalSink so the tracker can feed it directly.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	replay *ReplayBuffer
	m      *metrics.Metrics

	upgrader websocket.Upgrader
}

type latestEntry struct {
	Update model.SignalUpdate
	TS     time.Time
	Seq    int64
}

// NewHub creates a hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		replay:  NewReplayBuffer(1000),
		m:       m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// OnSignalChange implements model.SignalSink.
func (h *Hub) OnSignalChange(_ context.Context, update model.SignalUpdate) error {
	h.Broadcast(update)
	return nil
}

// Broadcast records update as the symbol's latest state and sends it to every
// client subscribed to the symbol. Slow clients drop messages rather than
// block the sender. Sequence assignment, the replay buffer and client queues
// all advance under one lock, so every consumer sees seq in order.
func (h *Hub) Broadcast(update model.SignalUpdate) {
	now := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	seq := h.seq
	h.latest[update.Symbol] = latestEntry{Update: update, TS: now, Seq: seq}

	env := buildEnvelope(update, now, seq, false)
	h.replay.Push(seq, env)

	for client := range h.clients {
		if !client.wants(update.Symbol) {
			continue
		}
		select {
		case client.send <- env:
		default:
		}
	}
}

// ServeHTTP upgrades the request and registers the client. Query parameters:
// symbols=BTC,ETH restricts the feed; last_seq=N replays missed envelopes
// instead of sending the latest state.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}

	client := newClient(conn, h, parseSymbols(r.URL.Query().Get("symbols")))

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.m != nil {
		h.m.WSClients.Set(float64(count))
	}
	slog.Info("ws client connected", "clients", count)

	if lastSeq, err := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64); err == nil && lastSeq > 0 {
		client.sendReplay(lastSeq)
	} else {
		client.sendInitialState()
	}
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)

	if h.m != nil {
		h.m.WSClients.Set(float64(count))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Latest returns the last update broadcast for symbol.
func (h *Hub) Latest(symbol string) (model.SignalUpdate, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[symbol]
	return e.Update, ok
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}
}
