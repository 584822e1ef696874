package websocket

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"connectfour/internal/transport"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StatsFunc reports live server counters for /stats.
type StatsFunc func() interface{}

// HistoryFunc returns up to limit finished matches of username, newest
// first.
type HistoryFunc func(ctx context.Context, username string, limit int64) (interface{}, error)

// Hooks are the read-only views the HTTP endpoints expose. Nil hooks
// disable their endpoint.
type Hooks struct {
	Stats   StatsFunc
	History HistoryFunc
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Server exposes the game protocol over WebSocket next to health and stats
// endpoints.
type Server struct {
	ctx          context.Context
	log          *zap.Logger
	handle       transport.Handler
	hooks        Hooks
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

// NewServer builds the HTTP server. ctx bounds every WebSocket session.
func NewServer(ctx context.Context, addr string, log *zap.Logger, handle transport.Handler, hooks Hooks, idleTimeout, writeTimeout time.Duration) *http.Server {
	s := &Server{
		ctx:          ctx,
		log:          log.Named("ws"),
		handle:       handle,
		hooks:        hooks,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
	}
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.ServeWS)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	r.HandleFunc("/history/{username}", s.historyHandler).Methods(http.MethodGet)
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	if s.hooks.Stats == nil {
		writeJSON(w, map[string]int{})
		return
	}
	writeJSON(w, s.hooks.Stats())
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.hooks.History == nil {
		writeError(w, http.StatusNotFound, "match history is not enabled")
		return
	}

	limit := int64(defaultHistoryLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	username := mux.Vars(r)["username"]
	matches, err := s.hooks.History(r.Context(), username, limit)
	if err != nil {
		s.log.Warn("history lookup failed", zap.String("player", username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	writeJSON(w, matches)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
