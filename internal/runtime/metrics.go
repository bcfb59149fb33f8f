package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/guildrelay/internal/runtime/jobs"
	"github.com/drblury/guildrelay/internal/runtime/progress"
	"github.com/drblury/guildrelay/internal/runtime/tasks"
)

const metricsNamespace = "guildrelay"

// Outcomes recorded for dispatched requests.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomePanic   = "panic"
)

// Reasons a bus message never reached a handler.
const (
	DropNotMessage = "not_message"
	DropDecode     = "decode"
	DropNoRoute    = "no_route"
	DropPayload    = "payload"
)

// Reply outcomes.
const (
	ReplyPublished    = "published"
	ReplyNoChannel    = "no_channel"
	ReplyEncodeError  = "encode_error"
	ReplyPublishError = "publish_error"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	mu sync.Mutex

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	droppedTotal    *prometheus.CounterVec
	repliesTotal    *prometheus.CounterVec
	tasksActive     prometheus.Gauge
	jobChunksTotal  prometheus.Counter
	jobsTotal       *prometheus.CounterVec
	jobMembers      prometheus.Counter

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// NewMetrics creates the collectors. registerer may be nil, in which case
// prometheus.DefaultRegisterer is used by Register.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer:    registerer,
		requestsTotal: newCounterVec("requests_total", "Requests dispatched to an endpoint, by outcome", []string{"endpoint", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent in endpoint handlers",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		droppedTotal: newCounterVec("dropped_total", "Bus messages discarded before dispatch, by reason", []string{"reason"}),
		repliesTotal: newCounterVec("replies_total", "Replies by publish outcome", []string{"outcome"}),
		tasksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_active",
			Help:      "Supervised handler and job tasks currently running",
		}),
		jobChunksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "jobs",
			Name:      "chunks_total",
			Help:      "Chunks accepted by the backend",
		}),
		jobsTotal: newCounterVec("jobs_total", "Chunked jobs by final status", []string{"status"}),
		jobMembers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "jobs",
			Name:      "members_processed_total",
			Help:      "Members reported processed by finished jobs",
		}),
	}
}

// Register registers every collector. Calling it again is a no-op, and
// collectors already present in the registerer are tolerated.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.droppedTotal,
		m.repliesTotal,
		m.tasksActive,
		m.jobChunksTotal,
		m.jobsTotal,
		m.jobMembers,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *Metrics) ObserveRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reply(outcome string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TaskStarted() {
	if m != nil {
		m.tasksActive.Inc()
	}
}

func (m *Metrics) TaskDone() {
	if m != nil {
		m.tasksActive.Dec()
	}
}

// TaskHooks keep the tasks_active gauge in step with a task group.
func (m *Metrics) TaskHooks() tasks.Hooks {
	if m == nil {
		return tasks.Hooks{}
	}
	return tasks.Hooks{
		OnStart: func(string) { m.TaskStarted() },
		OnDone:  func(string, time.Duration, error) { m.TaskDone() },
	}
}

// JobHooks feeds job engine progress into the collectors.
func (m *Metrics) JobHooks() jobs.Hooks {
	if m == nil {
		return jobs.Hooks{}
	}
	return jobs.Hooks{
		OnChunk: func(string, progress.Record) {
			m.jobChunksTotal.Inc()
		},
		OnFinish: func(_ string, res jobs.Result) {
			m.jobsTotal.WithLabelValues(string(res.Status)).Inc()
			m.jobMembers.Add(float64(res.Record.MembersProcessed))
		},
	}
}
