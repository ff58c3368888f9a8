package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"huddle/internal/admission"
	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// HealthChecker is any dependency that can report its own reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RoomDirectory exposes read-only room presence.
type RoomDirectory interface {
	RoomIDs() []string
	RoomSize(roomID string) int
	Members(roomID string) []types.MemberInfo
	GetStats() map[string]int
}

// Dependencies are the components the HTTP surface reads from. Cache and
// Verifier are optional.
type Dependencies struct {
	Database  HealthChecker
	Cache     HealthChecker
	Rooms     RoomDirectory
	WebSocket http.Handler
	// Verifier, when set, guards /api with the same bearer tokens the
	// chat handshake accepts.
	Verifier    interfaces.IdentityVerifier
	CORSOrigins []string
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps    Dependencies
	router  chi.Router
	logger  zerolog.Logger
	started time.Time
}

// NewServer builds the router: ops endpoints, room presence and the
// WebSocket upgrade route.
func NewServer(deps Dependencies, logger zerolog.Logger) *Server {
	s := &Server{
		deps:    deps,
		router:  chi.NewRouter(),
		logger:  logger.With().Str("component", "api").Logger(),
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(instrument)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	origins := s.deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.healthCheck)
	r.Handle("/metrics", promhttp.Handler())

	if s.deps.WebSocket != nil {
		r.Handle("/ws", s.deps.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		if s.deps.Verifier != nil {
			r.Use(s.requireIdentity)
		}
		r.Get("/rooms", s.listRooms)
		r.Get("/rooms/{projectID}", s.getRoom)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type RoomSummary struct {
	RoomID      string `json:"room_id"`
	MemberCount int    `json:"member_count"`
}

type ListRoomsResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}

type RoomResponse struct {
	RoomID      string             `json:"room_id"`
	MemberCount int                `json:"member_count"`
	Members     []types.MemberInfo `json:"members"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Cache       string                 `json:"cache"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /api/rooms - rooms with at least one connection
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	ids := s.deps.Rooms.RoomIDs()
	sort.Strings(ids)

	rooms := make([]RoomSummary, 0, len(ids))
	for _, id := range ids {
		size := s.deps.Rooms.RoomSize(id)
		if size == 0 {
			continue
		}
		rooms = append(rooms, RoomSummary{RoomID: id, MemberCount: size})
	}
	s.writeJSON(w, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}

// FUNCTIONAL DISCOVERY: GET /api/rooms/{projectID} - presence for one room;
// an idle room is reported with no members rather than as missing
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if !types.IsValidProjectID(projectID) {
		s.sendError(w, admission.ReasonInvalidProjectID, http.StatusBadRequest)
		return
	}
	projectID = types.NormalizeProjectID(projectID)

	members := s.deps.Rooms.Members(projectID)
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	s.writeJSON(w, http.StatusOK, RoomResponse{
		RoomID:      projectID,
		MemberCount: len(members),
		Members:     members,
	})
}

// FUNCTIONAL DISCOVERY: GET /health - database is required, the cache is
// advisory because lookups fall through to SQLite when Redis is down
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.deps.Database.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = "error: " + err.Error()
	}

	cacheStatus := "disabled"
	if s.deps.Cache != nil {
		cacheStatus = "healthy"
		if err := s.deps.Cache.HealthCheck(ctx); err != nil {
			cacheStatus = "error: " + err.Error()
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Cache:       cacheStatus,
		Connections: s.deps.Rooms.GetStats(),
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := admission.BearerToken(r.URL.Query().Get("token"), r.Header.Get("Authorization"))
		if token == "" {
			s.sendError(w, admission.ReasonTokenMissing, http.StatusUnauthorized)
			return
		}
		if _, err := s.deps.Verifier.Verify(r.Context(), token); err != nil {
			s.sendError(w, admission.ReasonAuthFailed, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
