package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConfig struct {
	system string
}

func (s stubConfig) GetPubSubSystem() string       { return s.system }
func (s stubConfig) GetNATSURL() string            { return "" }
func (s stubConfig) GetKafkaBrokers() []string     { return nil }
func (s stubConfig) GetKafkaConsumerGroup() string { return "" }
func (s stubConfig) GetRabbitMQURL() string        { return "" }
func (s stubConfig) GetNodeName() string           { return "relay-0" }

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	called := false
	r.RegisterWithCapabilities("stub", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		called = true
		assert.NotNil(t, logger)
		return Transport{}, nil
	}, Capabilities{Name: "stub", SupportsBroadcast: true})

	_, err := r.Build(context.Background(), stubConfig{system: "stub"}, nil)
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, r.Has("stub"))
	assert.True(t, r.GetCapabilities("stub").SupportsBroadcast)
}

func TestRegistryBuildErrors(t *testing.T) {
	r := NewRegistry()
	r.Register("b", nil)
	r.Register("a", nil)

	_, err := r.Build(context.Background(), nil, nil)
	require.Error(t, err)

	_, err = r.Build(context.Background(), stubConfig{system: "missing"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTransport)
	assert.Contains(t, err.Error(), `"missing"`)
	assert.Equal(t, []string{"a", "b"}, r.Names())

	_, err = r.Build(context.Background(), stubConfig{system: "a"}, nil)
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestRegistryBuildWrapsBuilderError(t *testing.T) {
	r := NewRegistry()
	refused := errors.New("connection refused")
	r.Register("broken", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, refused
	})

	_, err := r.Build(context.Background(), stubConfig{system: "broken"}, nil)
	require.ErrorIs(t, err, refused)
	assert.Contains(t, err.Error(), "broken:")
	assert.Equal(t, "broken", r.GetCapabilities("broken").Name)
}

func TestGetCapabilitiesUnknown(t *testing.T) {
	caps := NewRegistry().GetCapabilities("ghost")
	assert.Equal(t, "ghost", caps.Name)
	assert.False(t, caps.SupportsReliableDelivery())
	assert.True(t, ChannelCapabilities.SupportsReliableDelivery())
}

func TestWithTopicMapper(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	mapped := WithTopicMapper(Transport{Publisher: pubSub, Subscriber: pubSub}, func(ch string) string {
		return "mapped." + ch
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raw, err := pubSub.Subscribe(ctx, "mapped.PING")
	require.NoError(t, err)
	viaMapper, err := mapped.Subscriber.Subscribe(ctx, "PING")
	require.NoError(t, err)

	require.NoError(t, mapped.Publisher.Publish("PING", message.NewMessage("1", []byte("{}"))))

	for _, ch := range []<-chan *message.Message{raw, viaMapper} {
		msg := <-ch
		assert.Equal(t, "PING", msg.Metadata.Get(ChannelMetadataKey))
		msg.Ack()
	}
}

type recordingPublisher struct {
	message.Publisher
	closed *[]string
}

func (p recordingPublisher) Close() error {
	*p.closed = append(*p.closed, "pub")
	return nil
}

type recordingSubscriber struct {
	message.Subscriber
	closed *[]string
	err    error
}

func (s recordingSubscriber) Close() error {
	*s.closed = append(*s.closed, "sub")
	return s.err
}

func TestTransportCloseOrder(t *testing.T) {
	var closed []string
	boom := errors.New("boom")
	tr := Transport{
		Publisher:  recordingPublisher{closed: &closed},
		Subscriber: recordingSubscriber{closed: &closed, err: boom},
	}
	err := tr.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"sub", "pub"}, closed)
}
