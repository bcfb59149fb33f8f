package runtime

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/guildrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	transportpkg "github.com/drblury/guildrelay/transport"
)

// HealthMessage is returned by GET /.
const HealthMessage = "Relay server is running!"

// HTTPServer serves health, endpoint stats and Prometheus metrics.
type HTTPServer struct {
	svc      *Service
	gatherer prometheus.Gatherer
	router   *chi.Mux
	server   *http.Server
}

// NewHTTPServer builds the server on the configured listen address. A nil
// gatherer uses prometheus.DefaultGatherer.
func NewHTTPServer(svc *Service, gatherer prometheus.Gatherer) *HTTPServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &HTTPServer{svc: svc, gatherer: gatherer}
	s.router = s.setupRouter()
	s.server = &http.Server{
		Addr:              svc.Conf.ListenAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) setupRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.healthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Get("/endpoints", s.getEndpoints)
		r.Get("/status", s.getStatus)
	})
	if s.svc.Conf.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start blocks serving until Shutdown.
func (s *HTTPServer) Start() error {
	s.svc.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": s.server.Addr})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *HTTPServer) Router() http.Handler {
	return s.router
}

func (s *HTTPServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": HealthMessage})
}

func (s *HTTPServer) getEndpoints(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Stats())
}

type statusResponse struct {
	NodeID        int                       `json:"node_id"`
	PubSubSystem  string                    `json:"pubsub_system"`
	Transport     transportpkg.Capabilities `json:"transport"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	ActiveTasks   int                       `json:"active_tasks"`
	RunningTasks  []string                  `json:"running_tasks"`
	Resources     ResourceUsage             `json:"resources"`
}

func (s *HTTPServer) getStatus(w http.ResponseWriter, r *http.Request) {
	group := s.svc.Tasks()
	s.writeJSON(w, http.StatusOK, statusResponse{
		NodeID:        s.svc.Conf.NodeID(),
		PubSubSystem:  s.svc.Conf.PubSubSystem,
		Transport:     transportpkg.GetCapabilities(s.svc.Conf.PubSubSystem),
		UptimeSeconds: time.Since(s.svc.StartedAt()).Seconds(),
		ActiveTasks:   group.Active(),
		RunningTasks:  group.Running(),
		Resources:     s.svc.Resources(),
	})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	payload, err := jsoncodec.Marshal(data)
	if err != nil {
		s.svc.Logger.Error("Failed to encode HTTP response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
