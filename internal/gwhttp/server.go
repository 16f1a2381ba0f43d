// Package gwhttp implements the gateway's two HTTP surfaces: the chi-routed
// ELPP ingress endpoint devices and downlink integrations POST against, and
// a gorilla/mux introspection router exposing device and TAPOS state.
// /healthz and the Prometheus /metrics endpoint sit beside them on the
// top-level ServeMux.
package gwhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"elpp-gateway/internal/reassembly"
	"elpp-gateway/internal/tapos"
)

// Server wires the ingress chi router and the introspection mux router
// behind one *http.Server.
type Server struct {
	ingress    *chi.Mux
	debug      *mux.Router
	top        *http.ServeMux
	httpServer *http.Server

	store    *reassembly.Store
	reasm    *reassembly.Reassembler
	manager  *tapos.Manager
	logger   *logrus.Logger
	metrics  *metrics
	deadline time.Duration
	port     int
}

// Config holds the knobs Server needs beyond its component dependencies.
type Config struct {
	BindAddr        string
	Port            int
	RequestDeadline time.Duration
}

// NewServer builds a Server. logger must not be nil; callers pass the same
// *logrus.Logger used across the gateway's other components.
func NewServer(cfg Config, store *reassembly.Store, reasm *reassembly.Reassembler, manager *tapos.Manager, logger *logrus.Logger) *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		store:    store,
		reasm:    reasm,
		manager:  manager,
		logger:   logger,
		metrics:  newMetrics(reg),
		deadline: cfg.RequestDeadline,
		port:     cfg.Port,
	}

	s.ingress = chi.NewRouter()
	s.ingress.Use(requestIDMiddleware, s.loggingMiddleware)
	s.ingress.Post("/", s.handleUplink)

	s.debug = mux.NewRouter()
	s.debug.Use(s.loggingMiddlewareMux)
	s.debug.HandleFunc("/api/device_states", s.handleDeviceStates).Methods(http.MethodGet)
	s.debug.HandleFunc("/api/tapos_manager_state", s.handleTaposManagerState).Methods(http.MethodGet)

	s.top = http.NewServeMux()
	s.top.Handle("/", s.ingress)
	s.top.Handle("/api/", s.debug)
	s.top.HandleFunc("/healthz", s.handleHealthz)
	s.top.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      s.top,
		ReadTimeout:  cfg.RequestDeadline,
		WriteTimeout: cfg.RequestDeadline,
	}
	manager.SetObserver(s)
	return s
}

// Start blocks serving until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
