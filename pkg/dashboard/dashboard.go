// Package dashboard serves the local dashboard's push socket and its
// sibling resize endpoint: a websocket per connected client fed from the
// event bus, seeded with a one-time session snapshot, plus a small chi
// router for the PTY resize request dashboards issue over plain HTTP.
package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/ptysup"
	"github.com/sandoak/gsdharness/pkg/storage"
)

// initialState is the one-time snapshot a client receives right after the
// socket upgrade, before any live events are forwarded.
type initialState struct {
	Type     string      `json:"type"`
	Sessions interface{} `json:"sessions"`
}

// wireEvent is the typed JSON body forwarded for every bus event after the
// snapshot.
type wireEvent struct {
	Type      events.EventType  `json:"type"`
	SessionID string            `json:"sessionId"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Server wires the push socket and resize endpoint behind a chi router.
type Server struct {
	store  storage.Store
	bus    *events.Broker
	super  *ptysup.Supervisor
	logger zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan *events.Event
}

// Config bundles a Server's collaborators.
type Config struct {
	Store      storage.Store
	Events     *events.Broker
	Supervisor *ptysup.Supervisor
}

// New constructs a dashboard Server. It does not start listening; call
// Handler to obtain the mounted router and serve it yourself, or Start to
// run it on addr.
func New(cfg Config, logger zerolog.Logger) *Server {
	return &Server{
		store:    cfg.Store,
		bus:      cfg.Events,
		super:    cfg.Supervisor,
		logger:   logger.With().Str("component", "dashboard").Logger(),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		clients:  make(map[*client]struct{}),
	}
}

// Handler returns the mounted chi router: GET /ws for the push socket and
// POST /api/sessions/{id}/resize for the sibling resize path.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/ws", s.handleWebsocket)
	r.Post("/api/sessions/{id}/resize", s.handleResize)

	return r
}

// Start runs the dashboard HTTP server on addr in a background goroutine and
// returns the *http.Server, which runs until the caller calls its Shutdown;
// it is a thin ListenAndServe wrapper matching the rest of the harness's
// server lifecycles.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // streaming websocket connections must not be cut off
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("dashboard server stopped")
		}
	}()
	return srv
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list sessions for initial-state snapshot")
		_ = conn.Close()
		return
	}
	if err := conn.WriteJSON(initialState{Type: "initial-state", Sessions: sessions}); err != nil {
		_ = conn.Close()
		return
	}

	c := &client{conn: conn, send: make(chan *events.Event, 64)}
	sub := s.bus.Subscribe()

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.pump(c, sub)
	go s.drainReads(c, sub)
}

// pump forwards bus events to the client's websocket, best-effort: a slow
// reader never blocks the broker, matching the non-goal on guaranteed
// delivery to disconnected or lagging dashboard clients.
func (s *Server) pump(c *client, sub events.Subscriber) {
	defer func() {
		s.bus.Unsubscribe(sub)
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		_ = c.conn.Close()
	}()

	for ev := range sub {
		if err := c.conn.WriteJSON(wireEvent{
			Type:      ev.Type,
			SessionID: ev.SessionID,
			Timestamp: ev.Timestamp,
			Message:   ev.Message,
			Metadata:  ev.Metadata,
		}); err != nil {
			return
		}
	}
}

// drainReads discards inbound client frames but still watches for the
// connection closing, so a client hanging up promptly tears down its pump
// goroutine instead of leaking it until the next failed write.
func (s *Server) drainReads(c *client, sub events.Subscriber) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.bus.Unsubscribe(sub)
			return
		}
	}
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidArgumentf("invalid_body", "resize body must be {cols, rows}: %v", err))
		return
	}

	if err := s.super.Resize(sessionID, req.Cols, req.Rows); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "resized"})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := apierr.KindOf(err); ok {
		switch kind {
		case apierr.NotFound:
			status = http.StatusNotFound
		case apierr.InvalidArgument:
			status = http.StatusBadRequest
		case apierr.Conflict, apierr.PreconditionFailed:
			status = http.StatusConflict
		}
	}
	code, _ := apierr.CodeOf(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": err.Error(),
	})
}

// ClientCount reports the number of currently connected dashboard sockets.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
