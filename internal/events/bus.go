// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/vaultkeeper/internal/logging"
	"github.com/tomtom215/vaultkeeper/internal/metrics"
)

// DefaultTopic is used when Config.Topic is empty
const DefaultTopic = "vaultkeeper.events"

// Config configures a Bus.
type Config struct {
	// Topic is the Watermill topic and NATS subject.
	Topic string

	// NATSURL enables JetStream forwarding when set.
	NATSURL string

	// BufferSize is the per-subscriber channel buffer of the local bus.
	BufferSize int64
}

// Bus is the lifecycle event publisher.
type Bus struct {
	topic  string
	local  *gochannel.GoChannel
	remote message.Publisher
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewBus creates the local bus and, if configured, the NATS forwarder.
func NewBus(cfg Config) (*Bus, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	logger := logging.NewWatermillAdapterWithLogger(logging.WithComponent("events"))

	b := &Bus{
		topic: cfg.Topic,
		local: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.BufferSize,
		}, logger),
		logger: logger,
	}

	if cfg.NATSURL != "" {
		remote, err := newNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			b.local.Close() //nolint:errcheck // Best effort cleanup on error
			return nil, err
		}
		b.remote = remote
	}

	logging.Info().
		Str("topic", cfg.Topic).
		Bool("nats", cfg.NATSURL != "").
		Msg("Event bus started")

	return b, nil
}

func newNATSPublisher(url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}
	return pub, nil
}

// Topic returns the bus topic.
func (b *Bus) Topic() string {
	return b.topic
}

// Publish stamps and emits an event. Failures are logged, not returned.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	if evt.ID == "" {
		evt.ID = newEventID()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		b.report(ctx, evt, fmt.Errorf("failed to marshal event: %w", err))
		return
	}

	msg := message.NewMessage(evt.ID, payload)
	msg.Metadata.Set(MetadataType, string(evt.Type))
	msg.Metadata.Set(MetadataTenant, evt.TenantID)
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set("correlation_id", cid)
	}

	if err := b.local.Publish(b.topic, msg); err != nil {
		b.report(ctx, evt, fmt.Errorf("failed to publish locally: %w", err))
		return
	}
	if b.remote != nil {
		remoteMsg := msg.Copy()
		remoteMsg.Metadata.Set(natsgo.MsgIdHdr, evt.ID)
		if err := b.remote.Publish(b.topic, remoteMsg); err != nil {
			b.report(ctx, evt, fmt.Errorf("failed to forward to NATS: %w", err))
			return
		}
	}
	metrics.RecordEventPublish(string(evt.Type), nil)
}

func (b *Bus) report(ctx context.Context, evt Event, err error) {
	metrics.RecordEventPublish(string(evt.Type), err)
	logging.Ctx(ctx).Warn().
		Err(err).
		Str("event_type", string(evt.Type)).
		Str("tenant_id", evt.TenantID).
		Msg("Event publish failed")
}

// Subscribe returns a channel of every event published after the call.
// Each message must be acked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.local.Subscribe(ctx, b.topic)
}

// Close stops the bus. Later Publish calls are dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	if b.remote != nil {
		firstErr = b.remote.Close()
	}
	if err := b.local.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// newEventID prefers time-ordered ids.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var _ Publisher = (*Bus)(nil)
