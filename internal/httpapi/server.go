// Package httpapi exposes run status and results over a small read-mostly
// JSON API. It renders nothing; dashboards live elsewhere.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/quantfold/ruleback/internal/runs"
)

// Config tunes the server.
type Config struct {
	Addr string `yaml:"addr"`
	// RateLimit is requests per second allowed across the API, with
	// RateBurst of headroom.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// DefaultConfig serves on :8787 with a generous limit.
func DefaultConfig() Config {
	return Config{Addr: ":8787", RateLimit: 50, RateBurst: 100}
}

// Launcher starts a backtest for a named, pre-registered strategy and
// returns the run id. Unknown names return an error.
type Launcher func(strategyName string) (string, error)

// Server wires the routes.
type Server struct {
	cfg     Config
	manager *runs.Manager
	launch  Launcher
	limiter *rate.Limiter
	log     zerolog.Logger
	router  *mux.Router
}

// NewServer builds the server and its routes. gatherer feeds /metrics.
func NewServer(cfg Config, manager *runs.Manager, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		log:     logger,
	}

	r := mux.NewRouter()
	r.Use(s.throttle)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/runs", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/runs", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/runs/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}/result", s.handleResult).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

// SetLauncher installs the callback used by POST /api/runs. Without one the
// endpoint answers 503.
func (s *Server) SetLauncher(fn Launcher) { s.launch = fn }

// Handler returns the root handler, usable directly in tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks serving the API.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info().Str("addr", s.cfg.Addr).Msg("http api listening")
	return srv.ListenAndServe()
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.launch == nil {
		writeError(w, http.StatusServiceUnavailable, "run launching is not enabled")
		return
	}
	var req struct {
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Strategy == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"strategy\": \"<name>\"}")
		return
	}
	id, err := s.launch(req.Strategy)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Info().Str("run_id", id).Str("strategy", req.Strategy).Msg("run launched")
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.manager.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.manager.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if snap.Result == nil {
		writeError(w, http.StatusConflict, "run has no result")
		return
	}
	writeJSON(w, http.StatusOK, snap.Result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.manager.Cancel(id) {
		writeError(w, http.StatusConflict, "run is not cancellable")
		return
	}
	s.log.Info().Str("run_id", id).Msg("cancellation requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
