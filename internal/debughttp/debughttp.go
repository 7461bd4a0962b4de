// Package debughttp implements the optional read-only observability
// surface: a status endpoint, a polling event query endpoint, and a
// WebSocket that mirrors the ring live. None of it accepts a mutating
// request and none of it participates in any daemon invariant — it exists
// purely so a human (or a debug-panel script) can look inside a running
// daemon without going through the RPC socket.
package debughttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/i3pm/eventcore/internal/eventring"
	"github.com/i3pm/eventcore/internal/logx"
	"github.com/i3pm/eventcore/internal/model"
)

// StatusProvider supplies the fields shown by GET /status.
type StatusProvider interface {
	UptimeSeconds() int64
	Connected() bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const clientBuffer = 100

// Server hosts the debug HTTP surface on its own listener, independent of
// the RPC unix socket.
type Server struct {
	ring   *eventring.Ring
	status StatusProvider
	log    *logx.Logger

	router *mux.Router
	http   *http.Server

	mu      sync.Mutex
	clients map[chan model.RingEntry]struct{}
}

// New builds a Server bound to addr (e.g. "127.0.0.1:9091"). It does not
// start listening until Start is called.
func New(addr string, ring *eventring.Ring, status StatusProvider, log *logx.Logger) *Server {
	if log == nil {
		log = logx.New("debughttp")
	}
	s := &Server{
		ring:    ring,
		status:  status,
		log:     log,
		clients: make(map[chan model.RingEntry]struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/events", s.handleEvents).Methods("GET")
	r.HandleFunc("/events/ws", s.handleWebSocket).Methods("GET")
	s.router = r
	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// Broadcast fans a newly-accepted ring entry out to every connected
// WebSocket client. Wired as the ring's onBroadcast callback alongside the
// panel publisher's OnRingEntry; RPC subscribers are notified by the router,
// not through this callback.
func (s *Server) Broadcast(entry model.RingEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- entry:
		default:
			// slow client, drop rather than block the ring
		}
	}
}

// Start begins listening in a background goroutine. Listener errors other
// than a clean Shutdown are logged, not returned, matching the other
// daemon subsystems that run supervised under the errgroup.
func (s *Server) Start(ctx context.Context) {
	go func() {
		s.log.Printf("debug HTTP surface listening on http://%s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Printf("debug HTTP server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()
}

// Shutdown gracefully stops the listener, closing any open WebSocket
// connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type statusResponse struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
	Connected     bool  `json:"connected"`
	RingEntries   int   `json:"ring_entries"`
	RingCapacity  int   `json:"ring_capacity"`
	TotalEvents   int64 `json:"total_events"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.ring.Stats()
	writeJSON(w, statusResponse{
		UptimeSeconds: s.status.UptimeSeconds(),
		Connected:     s.status.Connected(),
		RingEntries:   stats.BufferSize,
		RingCapacity:  stats.MaxSize,
		TotalEvents:   stats.TotalEvents,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var sinceID int64
	if v := q.Get("since_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			sinceID = n
		}
	}

	eventType := q.Get("type")

	entries := s.ring.Query(limit, eventType, sinceID)
	writeJSON(w, entries)
}

// handleWebSocket upgrades the connection and streams ring entries as they
// arrive, pinging every 54s to keep intermediate proxies from closing an
// otherwise-idle connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan model.RingEntry, clientBuffer)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
	}()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case entry := <-ch:
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
