// Package realtime fans row changes out to subscribers. Delivery inside one
// process goes through a watermill gochannel that blocks each publish until
// every subscriber acked it, so a subscription sees changes in emission order.
// An optional Bridge relays changes between server instances.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/metrics"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Bridge carries changes to and from other instances.
type Bridge interface {
	Publish(ctx context.Context, c backend.Change) error
	// Run delivers remote changes until ctx is done.
	Run(ctx context.Context, deliver func(backend.Change)) error
	Close() error
}

type Broker struct {
	id     string
	pubsub *gochannel.GoChannel
	bridge Bridge

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBroker() *Broker {
	return &Broker{
		id: uuid.NewString(),
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            0,
			BlockPublishUntilSubscriberAck: true,
		}, zerologAdapter{}),
	}
}

// ID identifies this broker on the bridge.
func (b *Broker) ID() string { return b.id }

// Attach starts relaying through bridge. Changes published by this broker are
// not delivered back to it.
func (b *Broker) Attach(bridge Bridge) {
	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.bridge = bridge
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := bridge.Run(ctx, func(c backend.Change) {
			if c.Origin == b.id {
				return
			}
			if err := b.publishLocal(c); err != nil {
				log.Warn().Err(err).Str("table", c.Table).Msg("realtime relay")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("realtime bridge stopped")
		}
	}()
}

// Publish delivers c to local subscribers and to the bridge, if any.
func (b *Broker) Publish(ctx context.Context, c backend.Change) error {
	c.Origin = b.id
	if err := b.publishLocal(c); err != nil {
		return err
	}
	b.mu.Lock()
	bridge := b.bridge
	b.mu.Unlock()
	if bridge != nil {
		return bridge.Publish(ctx, c)
	}
	return nil
}

func (b *Broker) publishLocal(c backend.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	metrics.RealtimeEventsTotal.WithLabelValues(c.Table, string(c.Event)).Inc()
	return b.pubsub.Publish(c.Table, message.NewMessage(watermill.NewUUID(), payload))
}

type subscription struct {
	cancel context.CancelFunc
	closed atomic.Bool
}

func (s *subscription) Unsubscribe() {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
	}
}

// Subscribe registers h for changes selected by topic. The handler runs on a
// goroutine owned by the subscription and must not block on the publisher.
func (b *Broker) Subscribe(ctx context.Context, topic backend.Topic, h backend.Handler) (backend.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.pubsub.Subscribe(subCtx, topic.Table)
	if err != nil {
		cancel()
		return nil, err
	}
	sub := &subscription{cancel: cancel}
	metrics.RealtimeSubscriptions.Inc()
	go func() {
		defer metrics.RealtimeSubscriptions.Dec()
		for msg := range msgs {
			if !sub.closed.Load() && subCtx.Err() == nil {
				var c backend.Change
				if err := json.Unmarshal(msg.Payload, &c); err != nil {
					log.Warn().Err(err).Str("table", topic.Table).Msg("realtime decode")
				} else if topic.Matches(c) {
					h(c)
				}
			}
			msg.Ack()
		}
	}()
	return sub, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel, bridge := b.cancel, b.bridge
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if bridge != nil {
		_ = bridge.Close()
	}
	b.wg.Wait()
	return b.pubsub.Close()
}

type zerologAdapter struct {
	fields watermill.LogFields
}

func (a zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	log.Error().Err(err).Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a zerologAdapter) Info(msg string, fields watermill.LogFields) {
	log.Debug().Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a zerologAdapter) Debug(msg string, fields watermill.LogFields) {}

func (a zerologAdapter) Trace(msg string, fields watermill.LogFields) {}

func (a zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zerologAdapter{fields: a.fields.Add(fields)}
}
