package gateway

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// symbols filters the feed; empty means every symbol
	mu      sync.RWMutex
	symbols map[string]bool
}

func newClient(conn *websocket.Conn, hub *Hub, symbols []string) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  hub,
	}
	c.setSymbols(symbols)
	return c
}

func (c *Client) setSymbols(symbols []string) {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	c.mu.Lock()
	c.symbols = set
	c.mu.Unlock()
}

func (c *Client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[symbol]
}

// sendInitialState queues the latest envelope of every wanted symbol, sorted
// by symbol.
func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	symbols := make([]string, 0, len(c.hub.latest))
	for s := range c.hub.latest {
		if c.wants(s) {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	envs := make([][]byte, 0, len(symbols))
	for _, s := range symbols {
		e := c.hub.latest[s]
		envs = append(envs, buildEnvelope(e.Update, e.TS, e.Seq, true))
	}
	c.hub.mu.RUnlock()

	for _, env := range envs {
		select {
		case c.send <- env:
		default:
		}
	}
}

// sendReplay queues missed envelopes after lastSeq, falling back to the
// latest state when the gap is no longer buffered.
func (c *Client) sendReplay(lastSeq int64) {
	envs, complete := c.hub.replay.Since(lastSeq)
	if !complete {
		c.sendInitialState()
		return
	}
	for _, env := range envs {
		var head struct {
			Symbol string `json:"symbol"`
		}
		if json.Unmarshal(env, &head) == nil && !c.wants(head.Symbol) {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump handles keepalive and client commands:
//
//	{"type":"subscribe","symbols":["BTC","ETH"]}
//	{"ping":1700000000000}
func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type    string   `json:"type"`
			Symbols []string `json:"symbols"`
			Ping    int64    `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch {
		case strings.EqualFold(base.Type, "subscribe"):
			c.setSymbols(base.Symbols)
			c.sendInitialState()
		case base.Ping > 0:
			pong, _ := json.Marshal(map[string]any{
				"type":      "pong",
				"ping":      base.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

func parseSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
