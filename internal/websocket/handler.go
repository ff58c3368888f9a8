package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"huddle/internal/admission"
	"huddle/pkg/interfaces"
)

// Admitter decides whether a handshake may join a room.
type Admitter interface {
	Admit(ctx context.Context, credential, projectID string) (*admission.Admission, error)
}

// MessageDispatcher owns room membership and message handling for
// admitted connections.
type MessageDispatcher interface {
	Connect(conn interfaces.Connection) error
	Dispatch(ctx context.Context, conn interfaces.Connection, raw []byte) error
	Disconnect(conn interfaces.Connection)
}

// HandlerConfig carries transport timing and limits.
type HandlerConfig struct {
	PongWait         time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	ReadLimit        int64
	AllowedOrigins   []string
	Connection       Options
}

// DefaultHandlerConfig returns the heartbeat settings used in production.
// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping interval
// provides reliable connection health monitoring
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PongWait:         60 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// Handler admits, upgrades, and serves chat connections
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic;
// admission and dispatch arrive through interfaces
type Handler struct {
	admitter   Admitter
	dispatcher MessageDispatcher
	cfg        HandlerConfig
	upgrader   websocket.Upgrader
	logger     zerolog.Logger

	mu     sync.Mutex
	conns  map[string]*Connection
	closed bool
	wg     sync.WaitGroup
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(admitter Admitter, dispatcher MessageDispatcher, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	defaults := DefaultHandlerConfig()
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait / 2
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaults.ReadLimit
	}

	h := &Handler{
		admitter:   admitter,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With().Str("component", "websocket").Logger(),
		conns:      make(map[string]*Connection),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	// FUNCTIONAL DISCOVERY: An empty allow-list accepts every origin for development
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP handles connection requests
// ARCHITECTURAL DISCOVERY: Admission runs before the upgrade so rejected
// handshakes get a plain HTTP status and never consume a socket
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	credential := admission.BearerToken(query.Get("token"), r.Header.Get("Authorization"))
	projectID := query.Get("projectId")

	admitted, err := h.admitter.Admit(r.Context(), credential, projectID)
	if err != nil {
		var rejection *admission.Error
		if errors.As(err, &rejection) {
			http.Error(w, rejection.Reason, rejection.Status)
			return
		}
		http.Error(w, admission.ReasonAuthFailed, http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an HTTP error
		h.logger.Warn().Err(err).Str("project_id", projectID).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(ws, admitted.Identity, admitted.RoomID, h.cfg.Connection)
	if !h.track(conn) {
		_ = conn.Close()
		return
	}

	if err := h.dispatcher.Connect(conn); err != nil {
		h.logger.Error().Err(err).Str("connection_id", conn.ID()).Msg("failed to join room")
		h.untrack(conn)
		h.wg.Done()
		_ = conn.Close()
		return
	}

	go h.handleConnection(conn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
// ARCHITECTURAL DISCOVERY: Single goroutine per connection handles both heartbeat
// and message reading to prevent goroutine proliferation and resource leaks
func (h *Handler) handleConnection(conn *Connection) {
	defer h.wg.Done()
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures resources are released
		// even if connection handling exits unexpectedly
		h.dispatcher.Disconnect(conn)
		h.untrack(conn)
		_ = conn.Close()
	}()

	ws := conn.conn
	ws.SetReadLimit(h.cfg.ReadLimit)
	if err := ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait)); err != nil {
		h.logger.Warn().Err(err).Msg("failed to set read deadline")
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Warn().Err(err).Str("connection_id", conn.ID()).Msg("websocket read error")
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}
		if err := h.dispatcher.Dispatch(conn.ctx, conn, data); err != nil {
			h.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("message not dispatched")
		}
	}
}

// FUNCTIONAL DISCOVERY: Separate ticker goroutine enables consistent heartbeat
// timing independent of message processing
func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// WriteControl is safe alongside the writer goroutine
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}

func (h *Handler) track(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn.ID()] = conn
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn.ID())
}

// ActiveConnections returns the number of open sockets.
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown refuses new handshakes, closes every open socket, and waits for
// the read loops to finish or ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	open := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		open = append(open, conn)
	}
	h.mu.Unlock()

	for _, conn := range open {
		_ = conn.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections to close: %w", ctx.Err())
	}
}
