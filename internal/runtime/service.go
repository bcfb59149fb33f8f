package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	wmmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/guildrelay/internal/runtime/config"
	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	"github.com/drblury/guildrelay/internal/runtime/tasks"
	transportpkg "github.com/drblury/guildrelay/transport"
)

// ServiceDependencies holds the optional collaborators of a Service.
type ServiceDependencies struct {
	// Tasks supervises dispatched handlers. Endpoints that spawn jobs should
	// share it so Shutdown awaits them too. A group is created when nil.
	Tasks *tasks.Group
	// Metrics is created from Registerer when nil and metrics are enabled.
	Metrics    *Metrics
	Registerer prometheus.Registerer

	Middlewares               []MiddlewareRegistration // Appended after the default chain.
	DisableDefaultMiddlewares bool
	Hooks                     DispatchHooks
	ErrorClassifier           ErrorClassifier
}

// Service runs the dispatch loop over a transport and a discovered registry.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	registry   *Registry
	group      *tasks.Group
	responder  *replyPublisher
	metrics    *Metrics

	middlewares []Middleware
	handler     HandlerFunc

	stats           map[string]*EndpointStats
	errorClassifier ErrorClassifier
	resources       *resourceTracker
	startedAt       time.Time

	runMu   sync.Mutex
	running bool
}

// NewService wires a Service. The registry must already be discovered; it is
// not modified afterwards.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, tr transportpkg.Transport, registry *Registry, deps ServiceDependencies) (*Service, error) {
	switch {
	case conf == nil:
		return nil, errspkg.ErrConfigRequired
	case log == nil:
		return nil, errspkg.ErrLoggerRequired
	case tr.Publisher == nil:
		return nil, errspkg.ErrPublisherRequired
	case tr.Subscriber == nil:
		return nil, errspkg.ErrSubscriberRequired
	case registry.Len() == 0:
		return nil, errspkg.ErrEndpointRequired
	}

	log.Info("Creating relay service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"node_id":       conf.NodeID(),
		"endpoints":     registry.Channels(),
		"config":        conf.String(),
	})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		publisher:       tr.Publisher,
		subscriber:      tr.Subscriber,
		registry:        registry,
		errorClassifier: deps.ErrorClassifier,
		resources:       newResourceTracker(),
		startedAt:       time.Now(),
	}

	if conf.MetricsEnabled {
		s.metrics = deps.Metrics
		if s.metrics == nil {
			s.metrics = NewMetrics(deps.Registerer)
		}
		if err := s.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		if err := s.decoratePublisher(deps.Registerer); err != nil {
			return nil, err
		}
	}

	s.group = deps.Tasks
	if s.group == nil {
		s.group = tasks.NewGroup(ctx, log, s.metrics.TaskHooks())
	}

	s.responder = &replyPublisher{
		publisher: s.publisher,
		clusterID: conf.NodeID(),
		logger:    log,
		metrics:   s.metrics,
	}

	s.stats = make(map[string]*EndpointStats, registry.Len())
	for _, e := range registry.Endpoints() {
		if _, ok := s.stats[e.Name()]; !ok {
			s.stats[e.Name()] = newEndpointStats(e, s.resources)
		}
	}

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	s.handler = s.buildChain()
	return s, nil
}

// decoratePublisher adds Watermill's publish metrics to the reply publisher.
func (s *Service) decoratePublisher(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	builder := wmmetrics.NewPrometheusMetricsBuilder(reg, metricsNamespace, "bus")
	decorated, err := builder.DecoratePublisher(s.publisher)
	if err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return fmt.Errorf("decorate publisher: %w", err)
	}
	s.publisher = decorated
	return nil
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares)+1)
	registrations = append(registrations, defaults...)
	if deps.Hooks.OnStart != nil || deps.Hooks.OnDone != nil || deps.Hooks.OnError != nil {
		registrations = append(registrations, HooksMiddleware(deps.Hooks))
	}
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) getErrorClassifier() ErrorClassifier {
	if s.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return s.errorClassifier
}

// Shutdown cancels every dispatched handler and spawned job and waits for
// them, bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.Logger.Info("Shutting down relay service", loggingpkg.LogFields{"active_tasks": s.group.Active()})
	return s.group.Shutdown(ctx)
}

func (s *Service) Registry() *Registry  { return s.registry }
func (s *Service) Tasks() *tasks.Group  { return s.group }
func (s *Service) Metrics() *Metrics    { return s.metrics }
func (s *Service) StartedAt() time.Time { return s.startedAt }

// Resources samples process usage for the status endpoint.
func (s *Service) Resources() ResourceUsage {
	return s.resources.Snapshot()
}

// Stats returns per-endpoint stats in registration order.
func (s *Service) Stats() []*EndpointStats {
	out := make([]*EndpointStats, 0, len(s.stats))
	for _, name := range s.registry.Channels() {
		out = append(out, s.stats[name])
	}
	return out
}
