package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apimw "github.com/AidanWarner97/server-watcher/internal/httpapi/middleware"
	"github.com/AidanWarner97/server-watcher/internal/repo"
)

const (
	defaultSampleLimit = 60
	defaultEventLimit  = 50
	maxLimit           = 1000
)

// Server exposes the monitor's journal read-only.
type Server struct {
	Logger  *zap.Logger
	Journal repo.Journal
	// Feed streams live notifications; nil disables the websocket route.
	Feed http.Handler
	// Settings is served to admins as-is; pass an already redacted value.
	Settings any
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

func NewServer(l *zap.Logger, journal repo.Journal, feed http.Handler, settings any) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Journal: journal, Feed: feed, Settings: settings}
}

// Router builds the handler. Empty origins allow any origin; rpm <= 0
// disables rate limiting.
func (s *Server) Router(keys apimw.Keys, origins []string, rpm, burst int) http.Handler {
	r := chi.NewRouter()
	if s.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	if len(origins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(rpm, burst))
		r.Use(apimw.RequireAny(keys))

		r.Get("/api/status", s.handleStatus)
		r.Get("/api/samples", s.handleSamples)
		r.Get("/api/events", s.handleEvents)
		if s.Feed != nil {
			r.Handle("/api/events/ws", s.Feed)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(rpm, burst))
		r.Use(apimw.RequireAdmin(keys))
		r.Get("/api/config", s.handleConfig)
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Journal.Snapshot(r.Context())
	if err != nil {
		s.Logger.Warn("status_read_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no check has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultSampleLimit)
	if !ok {
		return
	}
	out, err := s.Journal.RecentSamples(r.Context(), limit)
	if err != nil {
		s.Logger.Warn("samples_read_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "samples unavailable")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultEventLimit)
	if !ok {
		return
	}
	out, err := s.Journal.RecentEvents(r.Context(), limit)
	if err != nil {
		s.Logger.Warn("events_read_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "events unavailable")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.Settings == nil {
		writeError(w, http.StatusNotFound, "no settings published")
		return
	}
	writeJSON(w, http.StatusOK, s.Settings)
}

// parseLimit reads ?limit=, clamped to maxLimit.
func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
