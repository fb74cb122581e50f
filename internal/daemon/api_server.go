package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"castspc/internal/api"
	"castspc/internal/config"
	"castspc/internal/logging"
)

type requestIDKey struct{}

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	mux    *http.ServeMux

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		mux:    mux,
	}
	token := cfg.Paths.APIToken

	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/chart", srv.handleChart)
	mux.HandleFunc("GET /api/sample", srv.handleSample)
	mux.HandleFunc("GET /api/stats", srv.handleStats)
	mux.HandleFunc("GET /api/samples", srv.handleSamples)
	mux.HandleFunc("POST /api/chart/update", srv.authMiddleware(token, srv.handleForceUpdate))
	mux.HandleFunc("POST /api/reset", srv.authMiddleware(token, srv.handleReset))
	mux.HandleFunc("POST /api/collection", srv.authMiddleware(token, srv.handleCollection))

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		if err := registry.Register(newEngineCollector(d)); err != nil {
			return nil, fmt.Errorf("register spc collector: %w", err)
		}
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	srv.server = &http.Server{
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.withRequestID(s.mux)
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("api request",
			logging.String(logging.FieldRequestID, id),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleChart(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, api.ChartResponse{ChartView: s.daemon.Chart()})
}

func (s *apiServer) handleSample(w http.ResponseWriter, r *http.Request) {
	sample, ok := s.daemon.CurrentSample()
	if !ok {
		w.Header().Set("X-Request-ID", requestID(r))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sample)
}

// queryHours parses ?hours=, defaulting to a day. ok is false after a 400 was written.
func (s *apiServer) queryHours(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("hours"))
	if raw == "" {
		return api.DefaultStatsHours, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "hours must be a positive integer")
		return 0, false
	}
	return parsed, true
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	hours, ok := s.queryHours(w, r)
	if !ok {
		return
	}
	stats, err := s.daemon.Stats(r.Context(), hours)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, stats)
}

func (s *apiServer) handleSamples(w http.ResponseWriter, r *http.Request) {
	hours, ok := s.queryHours(w, r)
	if !ok {
		return
	}
	samples, err := s.daemon.Samples(r.Context(), hours)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, samples)
}

func (s *apiServer) handleForceUpdate(w http.ResponseWriter, r *http.Request) {
	resp := s.daemon.ForceUpdate(r.Context())
	s.logger.Info("chart update forced via api",
		logging.String(logging.FieldRequestID, requestID(r)),
		logging.Bool("updated", resp.Updated),
	)
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *apiServer) handleReset(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.Reset(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("spc state reset via api", logging.String(logging.FieldRequestID, requestID(r)))
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *apiServer) handleCollection(w http.ResponseWriter, r *http.Request) {
	var req api.CollectionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil || req.Enabled == nil {
		s.writeError(w, r, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.daemon.SetCollecting(*req.Enabled))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID(r))
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response",
			logging.Error(err),
			logging.String(logging.FieldRequestID, requestID(r)),
		)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, api.ErrorResponse{Error: message, RequestID: requestID(r)})
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
