package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-patronage-indexer/internal/adapter"
	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	natsjs "github.com/feral-file/ff-patronage-indexer/internal/providers/jetstream"
	"github.com/feral-file/ff-patronage-indexer/internal/reducer"
)

// DEFAULT_NAK_DELAY is how long a message waits before redelivery after a failed read
const DEFAULT_NAK_DELAY = 5 * time.Second

// ErrConsumerClosed is returned when the consume loop stops underneath the bridge
var ErrConsumerClosed = errors.New("consumer closed")

// Config holds the configuration for the event bridge
type Config struct {
	natsjs.Config
	ConsumerName   string
	AckWaitTimeout time.Duration
	MaxDeliver     int
	NakDelay       time.Duration
}

// Applier reduces one patronage event into the ledger
type Applier interface {
	Apply(ctx context.Context, event *domain.PatronageEvent) (reducer.Outcome, error)
}

// Bridge consumes patronage events from the stream and applies them to the ledger
type Bridge interface {
	// Run starts the event bridge
	Run(ctx context.Context) error
	// Close closes the bridge and cleans up resources
	Close()
}

type bridge struct {
	nc      adapter.NatsConn
	js      adapter.JetStream
	applier Applier
	json    adapter.JSON
	config  Config
}

// NewBridge creates a new event bridge
func NewBridge(
	cfg Config,
	natsJS adapter.NatsJetStream,
	applier Applier,
	jsonAdapter adapter.JSON,
) (Bridge, error) {
	nc, js, err := natsJS.Connect(cfg.URL, natsjs.ConnectionOptions(cfg.Config, nil)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	if cfg.NakDelay == 0 {
		cfg.NakDelay = DEFAULT_NAK_DELAY
	}

	return &bridge{
		nc:      nc,
		js:      js,
		applier: applier,
		json:    jsonAdapter,
		config:  cfg,
	}, nil
}

// ConsumerConfig returns the durable consumer of the ledger worker.
// One message is in flight at a time so a steward's events are applied in stream order.
func ConsumerConfig(cfg Config) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWaitTimeout,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		FilterSubject: natsjs.SUBJECT_PREFIX + ".>",
	}
}

// Run starts the event bridge
func (b *bridge) Run(ctx context.Context) error {
	logger.InfoCtx(ctx, "Starting event bridge", zap.String("stream", b.config.StreamName), zap.String("consumer", b.config.ConsumerName))

	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.config.StreamName, ConsumerConfig(b.config))
	if err != nil {
		return fmt.Errorf("failed to create/update consumer: %w", err)
	}

	consumerInfo, err := consumer.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}
	logger.InfoCtx(ctx, "Consumer created/retrieved",
		zap.String("consumer", consumerInfo.Name),
		zap.Uint64("pending", consumerInfo.NumPending))

	msgChan := make(chan adapter.Message, 1)
	sub, err := consumer.Consume(func(msg adapter.Message) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	defer sub.Stop()

	logger.InfoCtx(ctx, "Started consuming messages")

	// Messages are handled one by one
	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Shutting down event bridge")
			return ctx.Err()
		case <-sub.Closed():
			return ErrConsumerClosed
		case msg := <-msgChan:
			b.handleMessage(ctx, msg)
		}
	}
}

// handleMessage applies a single message and settles it.
// Redeliverable failures are NAKed with a delay; poison messages are terminated.
func (b *bridge) handleMessage(ctx context.Context, msg adapter.Message) {
	var deliveries uint64
	if metadata, err := msg.Metadata(); err == nil && metadata != nil {
		deliveries = metadata.NumDelivered
	}

	var event domain.PatronageEvent
	if err := b.json.Unmarshal(msg.Data(), &event); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to unmarshal event"), zap.String("subject", msg.Subject()))
		b.term(ctx, msg)
		return
	}

	fields := append(logger.EventFields(&event), zap.Uint64("deliveryCount", deliveries))
	logger.DebugCtx(ctx, "Received event", fields...)

	outcome, err := b.applier.Apply(ctx, &event)
	if err != nil {
		var readErr *reducer.ReadError
		switch {
		case errors.Is(err, domain.ErrInvalidEvent), errors.Is(err, domain.ErrUnknownContract):
			logger.ErrorCtx(ctx, err, append(fields, zap.String("message", "Dropping event that can never be applied"))...)
			b.term(ctx, msg)
		case errors.As(err, &readErr):
			logger.WarnCtx(ctx, "Contract read failed, event will be redelivered", append(fields, zap.Error(err))...)
			b.nak(ctx, msg)
		default:
			logger.ErrorCtx(ctx, err, append(fields, zap.String("message", "Failed to apply event"))...)
			b.nak(ctx, msg)
		}
		return
	}

	logger.InfoCtx(ctx, "Applied event", append(fields, zap.String("outcome", string(outcome)))...)

	if err := msg.Ack(); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to ACK message"))
	}
}

func (b *bridge) nak(ctx context.Context, msg adapter.Message) {
	if err := msg.NakWithDelay(b.config.NakDelay); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to NAK message"))
	}
}

func (b *bridge) term(ctx context.Context, msg adapter.Message) {
	if err := msg.Term(); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to terminate message"))
	}
}

// Close closes the bridge and cleans up resources
func (b *bridge) Close() {
	if b.nc == nil {
		return
	}

	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}
