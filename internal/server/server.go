// Package server exposes the monitoring service over HTTP: status and
// history endpoints, cycle control, and a WebSocket feed of detected
// changes.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/vigil/internal/app"
	"github.com/raysh454/vigil/internal/logging"
	"github.com/raysh454/vigil/internal/report"
)

// RecentChangesReader reads persisted change rows. Satisfied by
// report.ChangeLog; nil disables the endpoint.
type RecentChangesReader interface {
	RecentChanges(ctx context.Context, limit int) ([]report.ChangeRow, error)
}

// Config holds the server settings.
type Config struct {
	ListenAddr string
	Logger     logging.Logger
}

// Server is the HTTP + WebSocket API surface.
type Server struct {
	cfg      Config
	service  *app.Service
	changes  RecentChangesReader
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer wraps a running service in the API surface.
func NewServer(cfg Config, service *app.Service, changes RecentChangesReader) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop{}
	}

	s := &Server{
		cfg:     cfg,
		service: service,
		changes: changes,
		router:  chi.NewRouter(),
		logger:  logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	r.Options("/status", s.optionsHandler("GET"))
	r.Options("/urls", s.optionsHandler("GET"))
	r.Options("/urls/history", s.optionsHandler("GET"))
	r.Options("/urls/reset", s.optionsHandler("POST"))
	r.Options("/changes/recent", s.optionsHandler("GET"))
	r.Options("/scheduler/upcoming", s.optionsHandler("GET"))
	r.Options("/cycle/run", s.optionsHandler("POST"))

	r.Get("/status", s.handleStatus)
	r.Get("/urls", s.handleListURLs)
	r.Get("/urls/history", s.handleURLHistory)
	r.Post("/urls/reset", s.handleResetURL)
	r.Get("/changes/recent", s.handleRecentChanges)
	r.Get("/scheduler/upcoming", s.handleUpcoming)
	r.Post("/cycle/run", s.handleRunCycle)
	r.Get("/ws/changes", s.handleChangesWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}
	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *Server) handleListURLs(w http.ResponseWriter, r *http.Request) {
	urls := s.service.TrackedURLs()
	if urls == nil {
		urls = []string{}
	}
	s.logger.Info("listed urls", logging.Field{Key: "count", Value: len(urls)})
	writeJSON(w, http.StatusOK, urls)
}

func (s *Server) handleURLHistory(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url query parameter")
		return
	}

	meta := s.service.History(url)
	if meta == nil {
		writeError(w, http.StatusNotFound, "no history for url")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleResetURL(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url query parameter")
		return
	}
	s.service.Scheduler().Reset(url)
	s.logger.Info("schedule reset requested", logging.Field{Key: "url", Value: url})
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleRecentChanges(w http.ResponseWriter, r *http.Request) {
	if s.changes == nil {
		writeError(w, http.StatusNotFound, "change log disabled")
		return
	}

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}

	rows, err := s.changes.RecentChanges(r.Context(), limit)
	if err != nil {
		s.logger.Warn("listing recent changes", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []report.ChangeRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}
	writeJSON(w, http.StatusOK, s.service.Scheduler().UpcomingChecks(limit))
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	stats := s.service.RunCycle(r.Context())
	if stats == nil {
		writeError(w, http.StatusConflict, "cycle already running")
		return
	}
	s.logger.Info("cycle run via api", logging.Field{Key: "cycle_id", Value: stats.CycleID})
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChangesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	changes, cancel := s.service.Subscribe()
	defer cancel()

	// Drain client reads so close frames are processed.
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
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
