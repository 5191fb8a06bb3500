// Package gateway streams trade signals to websocket clients and serves
// the engine's per-symbol state over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

const replayDepth = 500

type latestEntry struct {
	Data     json.RawMessage
	Envelope []byte // live envelope, resent as-is on connect
	TS       time.Time
	Seq      int64 // per-symbol seq for gap detection
}

// Hub fans trade signals out to websocket clients. It is a router
// processor: registering it on the router puts it on the signal path.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	latest     map[string]latestEntry
	seq        int64
	symbolSeqs map[string]int64
	replayBufs map[string]*ReplayBuffer

	now func() time.Time

	// OnClientCount observes the connected-client count after each change.
	OnClientCount func(n int)
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		latest:     make(map[string]latestEntry),
		symbolSeqs: make(map[string]int64),
		replayBufs: make(map[string]*ReplayBuffer),
		now:        time.Now,
	}
}

func (h *Hub) Matches(ev model.Event) bool {
	sig, ok := ev.(*model.TradeSignal)
	return ok && sig != nil
}

// ProcessEvent broadcasts a signal. Slow clients lose messages rather
// than stall the dispatch.
func (h *Hub) ProcessEvent(ctx context.Context, ev model.Event) error {
	if sig, ok := ev.(*model.TradeSignal); ok && sig != nil {
		h.Broadcast(sig)
	}
	return nil
}

// Broadcast sends sig to every client subscribed to its symbol.
// The envelope carries a global seq and a per-symbol seq for client-side
// gap detection.
func (h *Hub) Broadcast(sig *model.TradeSignal) {
	now := h.now().UTC()
	data := sig.Record()
	channel := sig.StreamKey()

	h.mu.Lock()
	h.symbolSeqs[sig.Symbol]++
	symbolSeq := h.symbolSeqs[sig.Symbol]
	h.seq++
	buf := envelope(channel, data, now, h.seq, symbolSeq)
	h.latest[sig.Symbol] = latestEntry{Data: data, Envelope: buf, TS: now, Seq: symbolSeq}
	rb, exists := h.replayBufs[sig.Symbol]
	if !exists {
		rb = NewReplayBuffer(replayDepth)
		h.replayBufs[sig.Symbol] = rb
	}
	h.mu.Unlock()

	rb.Push(symbolSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(sig.Symbol) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// envelope builds the wire message for one signal. Live broadcasts and the
// on-connect replay share this shape.
func envelope(channel string, data []byte, ts time.Time, seq, symbolSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"type":"signal","channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"symbol_seq":`...)
	buf = strconv.AppendInt(buf, symbolSeq, 10)
	buf = append(buf, '}')
	return buf
}

// Attach registers an upgraded connection and starts its pumps.
// lastTS (RFC3339Nano, optional) limits the initial latest-signal replay
// to signals broadcast after it.
func (h *Hub) Attach(conn *websocket.Conn, symbols []string, lastTS string) *Client {
	c := newClient(h, conn, symbols)

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	c.sendInitialState(lastTS)
	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// LatestAll returns the most recent signal payload per symbol.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ReplayRange returns buffered envelopes of a symbol in [fromSeq, toSeq].
func (h *Hub) ReplayRange(symbol string, fromSeq, toSeq int64) []json.RawMessage {
	h.mu.RLock()
	rb, exists := h.replayBufs[symbol]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// SymbolSeq returns the current sequence number of a symbol.
func (h *Hub) SymbolSeq(symbol string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.symbolSeqs[symbol]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
