package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/guildrelay/internal/runtime/config"
	"github.com/drblury/guildrelay/internal/runtime/jsoncodec"
	"github.com/drblury/guildrelay/internal/runtime/logging/logtest"
	transportpkg "github.com/drblury/guildrelay/transport"
)

const waitFor = 2 * time.Second

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for range messages {
		p.topics = append(p.topics, topic)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type unencodable struct{}

func (unencodable) MarshalJSON() ([]byte, error) {
	return nil, errors.New("cannot encode")
}

type harness struct {
	t        *testing.T
	svc      *Service
	pubSub   *gochannel.GoChannel
	logs     *logtest.Recorder
	registry *prometheus.Registry
	cancel   context.CancelFunc
	done     chan error
}

type harnessOption func(*configpkg.Config, *ServiceDependencies)

func withProcessTimeout(d time.Duration) harnessOption {
	return func(c *configpkg.Config, _ *ServiceDependencies) { c.ProcessTimeout = d }
}

func withHooks(h DispatchHooks) harnessOption {
	return func(_ *configpkg.Config, deps *ServiceDependencies) { deps.Hooks = h }
}

// newHarness runs a service over a persistent in-memory pub/sub, so requests
// published before the loop subscribes are still delivered.
func newHarness(t *testing.T, regs []Registration, opts ...harnessOption) *harness {
	t.Helper()

	logs := logtest.New()
	registry, err := Discover(logs, regs...)
	require.NoError(t, err)

	conf := configpkg.Default()
	conf.Hostname = "relay-2"
	conf.ProcessTimeout = time.Second
	promReg := prometheus.NewRegistry()
	deps := ServiceDependencies{Registerer: promReg}
	for _, opt := range opts {
		opt(conf, &deps)
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 16,
		Persistent:          true,
	}, watermill.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	tr := transportpkg.Transport{Publisher: pubSub, Subscriber: pubSub}
	svc, err := NewService(ctx, conf, logs, tr, registry, deps)
	require.NoError(t, err)

	h := &harness{
		t:        t,
		svc:      svc,
		pubSub:   pubSub,
		logs:     logs,
		registry: promReg,
		cancel:   cancel,
		done:     make(chan error, 1),
	}
	go func() { h.done <- svc.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(waitFor):
			t.Error("dispatch loop did not stop")
		}
		shutdownCtx, stop := context.WithTimeout(context.Background(), waitFor)
		defer stop()
		_ = svc.Shutdown(shutdownCtx)
		_ = pubSub.Close()
	})
	return h
}

func (h *harness) request(channel, nonce string, data any) {
	h.t.Helper()
	require.NoError(h.t, PublishRequest(context.Background(), h.pubSub, channel, nonce, data))
}

func (h *harness) publishRaw(channel string, payload []byte) {
	h.t.Helper()
	msg := message.NewMessage(watermill.NewUUID(), payload)
	require.NoError(h.t, h.pubSub.Publish(channel, msg))
}

func (h *harness) replies(channel string) <-chan *message.Message {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.t.Cleanup(cancel)
	msgs, err := h.pubSub.Subscribe(ctx, channel)
	require.NoError(h.t, err)
	return msgs
}

// nextReply decodes the next message on msgs into a generic map.
func (h *harness) nextReply(msgs <-chan *message.Message) map[string]any {
	h.t.Helper()
	select {
	case msg := <-msgs:
		msg.Ack()
		var out map[string]any
		require.NoError(h.t, jsoncodec.Unmarshal(msg.Payload, &out))
		return out
	case <-time.After(waitFor):
		h.t.Fatal("no reply received")
		return nil
	}
}

func (h *harness) noReply(msgs <-chan *message.Message, within time.Duration) {
	h.t.Helper()
	select {
	case msg := <-msgs:
		msg.Ack()
		h.t.Fatalf("unexpected reply: %s", msg.Payload)
	case <-time.After(within):
	}
}

func (h *harness) waitLog(level, substr string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.logs.Has(level, substr)
	}, waitFor, 5*time.Millisecond, "expected %s log containing %q", level, substr)
}
