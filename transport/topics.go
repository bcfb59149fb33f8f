package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// TopicMapper rewrites relay channel names into broker topic names.
type TopicMapper func(channel string) string

// WithTopicMapper returns a transport whose publisher and subscriber pass
// every channel name through mapper. Messages keep their original channel in
// metadata so the dispatch loop still routes on the relay name.
func WithTopicMapper(t Transport, mapper TopicMapper) Transport {
	if mapper == nil {
		return t
	}
	return Transport{
		Publisher:  &mappedPublisher{Publisher: t.Publisher, mapper: mapper},
		Subscriber: &mappedSubscriber{Subscriber: t.Subscriber, mapper: mapper},
	}
}

type mappedPublisher struct {
	message.Publisher
	mapper TopicMapper
}

func (p *mappedPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if msg.Metadata.Get(ChannelMetadataKey) == "" {
			msg.Metadata.Set(ChannelMetadataKey, topic)
		}
	}
	return p.Publisher.Publish(p.mapper(topic), messages...)
}

type mappedSubscriber struct {
	message.Subscriber
	mapper TopicMapper
}

func (s *mappedSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.Subscriber.Subscribe(ctx, s.mapper(topic))
}

// ChannelMetadataKey carries the relay channel name on every outgoing message.
const ChannelMetadataKey = "relay_channel"
