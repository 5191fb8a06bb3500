package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/signal"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// StateSource exposes the engine's per-symbol state.
type StateSource interface {
	ID() string
	States() []signal.SymbolState
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Handler returns the gateway routes:
//
//	/ws/signals            websocket signal feed (?symbols=SPY,QQQ&last_ts=...)
//	/api/state             engine state per symbol (?symbol=SPY for one)
//	/api/signals/latest    latest signal per symbol
//	/api/signals/missed    buffered envelopes (?symbol=SPY&from=N&to=M)
func Handler(hub *Hub, states StateSource) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub, states)
	return mux
}

// RegisterRoutes registers the gateway routes on mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, states StateSource) {
	mux.HandleFunc("/ws/signals", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		q := r.URL.Query()
		hub.Attach(conn, splitSymbols(q.Get("symbols")), q.Get("last_ts"))
	})

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		all := states.States()
		if sym := r.URL.Query().Get("symbol"); sym != "" {
			for _, st := range all {
				if st.Symbol == sym {
					writeJSON(w, http.StatusOK, st)
					return
				}
			}
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown symbol " + sym})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"engine_id": states.ID(),
			"symbols":   all,
		})
	})

	mux.HandleFunc("/api/signals/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, http.StatusOK, hub.LatestAll())
	})

	mux.HandleFunc("/api/signals/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		symbol := q.Get("symbol")
		from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
		to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
		if symbol == "" || errFrom != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol and from are required"})
			return
		}
		if errTo != nil {
			to = hub.SymbolSeq(symbol)
		}
		envelopes := hub.ReplayRange(symbol, from, to)
		if envelopes == nil {
			envelopes = []json.RawMessage{}
		}
		writeJSON(w, http.StatusOK, envelopes)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
