package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const natsSubjectPrefix = "termchat.changes."

// NATSBridge relays changes on one subject per table.
type NATSBridge struct {
	nc *nats.Conn
}

func NewNATSBridge(url string) (*NATSBridge, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSBridge{nc: nc}, nil
}

func (b *NATSBridge) Publish(_ context.Context, c backend.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(natsSubjectPrefix+c.Table, payload); err != nil {
		return fmt.Errorf("failed to publish change on %s: %w", c.Table, err)
	}
	return nil
}

func (b *NATSBridge) Run(ctx context.Context, deliver func(backend.Change)) error {
	ch := make(chan *nats.Msg, 256)
	sub, err := b.nc.ChanSubscribe(natsSubjectPrefix+">", ch)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var c backend.Change
			if err := json.Unmarshal(msg.Data, &c); err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject).Msg("nats change decode")
				continue
			}
			deliver(c)
		}
	}
}

func (b *NATSBridge) Close() error {
	b.nc.Close()
	return nil
}
