// Package events fans registry notifications out to independent consumers
// over an in-process watermill pub/sub.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	log "github.com/sirupsen/logrus"

	"assetledger/pkg/registry"
)

const (
	Topic             = "asset_events"
	defaultBufferSize = 64
	queueSize         = 4096
)

// Bus implements registry.Notifier. Notify only enqueues, so it never blocks
// the registry; a single pump publishes the queue in order and waits for every
// subscriber to take each message before sending the next one. Subscribers
// therefore see events in the order they were emitted. Events are dropped when
// the queue is full or nobody is subscribed.
type Bus struct {
	pubSub     *gochannel.GoChannel
	logger     *log.Entry
	bufferSize int

	mu     sync.RWMutex
	closed bool
	queue  chan registry.Event
	done   chan struct{}
}

func NewBus() *Bus {
	return NewBusWithBuffer(defaultBufferSize)
}

func NewBusWithBuffer(size int) *Bus {
	if size < 0 {
		size = 0
	}
	logger := log.WithField("component", "events")
	b := &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            int64(size),
				BlockPublishUntilSubscriberAck: true,
			},
			NewLogrusAdapter(logger),
		),
		logger:     logger,
		bufferSize: size,
		queue:      make(chan registry.Event, queueSize),
		done:       make(chan struct{}),
	}
	go b.pump()
	return b
}

func (b *Bus) Notify(event registry.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.WithField("event_id", event.ID).Warn("bus closed; event dropped")
		return
	}
	select {
	case b.queue <- event:
	default:
		b.logger.WithFields(log.Fields{"event_id": event.ID, "event_type": event.Type}).Warn("event queue full; event dropped")
	}
}

func (b *Bus) pump() {
	defer close(b.done)
	for event := range b.queue {
		b.publish(event)
	}
}

func (b *Bus) publish(event registry.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.WithError(err).WithField("event_type", event.Type).Error("failed to encode event")
		return
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("type", string(event.Type))

	if err := b.pubSub.Publish(Topic, msg); err != nil {
		b.logger.WithError(err).WithField("event_id", event.ID).Warn("failed to publish event")
	}
}

// Subscribe returns a channel receiving every event published after the call.
// The channel is closed when ctx is cancelled or the bus is closed; on Close
// every event already queued is delivered first.
func (b *Bus) Subscribe(ctx context.Context) (<-chan registry.Event, error) {
	messages, err := b.pubSub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, err
	}

	out := make(chan registry.Event, b.bufferSize)
	go func() {
		defer close(out)
		for msg := range messages {
			var event registry.Event
			err := json.Unmarshal(msg.Payload, &event)
			msg.Ack()
			if err != nil {
				b.logger.WithError(err).WithField("message_uuid", msg.UUID).Warn("dropping undecodable event")
				continue
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close stops accepting events, publishes whatever is still queued and then
// closes every subscription. It blocks until the queue is drained, which
// requires subscribers to keep reading.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
	return b.pubSub.Close()
}
