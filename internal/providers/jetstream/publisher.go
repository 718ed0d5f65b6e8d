package jetstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-patronage-indexer/internal/adapter"
	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/messaging"
)

const (
	// SUBJECT_PREFIX prefixes every patronage event subject
	SUBJECT_PREFIX = "patronage"
	// DEFAULT_DUPLICATE_WINDOW is how long JetStream remembers published message ids
	DEFAULT_DUPLICATE_WINDOW = 24 * time.Hour
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	// DuplicateWindow is the stream's message id deduplication window
	DuplicateWindow time.Duration
}

type publisher struct {
	nc         adapter.NatsConn
	js         adapter.JetStream
	streamName string
	json       adapter.JSON
	closed     chan struct{}
}

// ConnectionOptions returns the nats options shared by publishers and consumers
func ConnectionOptions(cfg Config, closed chan struct{}) []nats.Option {
	return []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
			if closed != nil {
				close(closed)
			}
		}),
	}
}

// StreamConfig returns the stream holding every patronage event subject
func StreamConfig(cfg Config) jetstream.StreamConfig {
	window := cfg.DuplicateWindow
	if window == 0 {
		window = DEFAULT_DUPLICATE_WINDOW
	}
	return jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{SUBJECT_PREFIX + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		Duplicates: window,
	}
}

// NewPublisher connects to NATS and makes sure the patronage stream exists
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (messaging.Publisher, error) {
	closed := make(chan struct{})
	nc, js, err := natsJS.Connect(cfg.URL, ConnectionOptions(cfg, closed)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	if err := js.EnsureStream(ctx, StreamConfig(cfg)); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}

	return &publisher{
		nc:         nc,
		js:         js,
		streamName: cfg.StreamName,
		json:       jsonAdapter,
		closed:     closed,
	}, nil
}

// PublishEvent publishes a patronage event. The event key is the message id,
// so re-publishing after an emitter restart is dropped by the stream.
func (p *publisher) PublishEvent(ctx context.Context, event *domain.PatronageEvent) error {
	logger.DebugCtx(ctx, "Publishing patronage event", logger.EventFields(event)...)

	data, err := p.json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := p.js.Publish(ctx, Subject(event), data,
		jetstream.WithMsgID(event.Key()),
		jetstream.WithExpectStream(p.streamName))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if ack != nil && ack.Duplicate {
		logger.DebugCtx(ctx, "Event already published", zap.String("key", event.Key()))
	}

	return nil
}

// Subject returns patronage.{chain}.{kind}, e.g. patronage.eip155-1.buy
func Subject(event *domain.PatronageEvent) string {
	chain := strings.ReplaceAll(string(event.Chain), ":", "-")
	return fmt.Sprintf("%s.%s.%s", SUBJECT_PREFIX, chain, event.Kind)
}

// Close drains and closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	if err := p.nc.Drain(); err != nil {
		logger.Warn("Failed to drain NATS connection", zap.Error(err))
		p.nc.Close()
	}
}

// CloseChan returns a channel closed once the NATS connection is closed
func (p *publisher) CloseChan() <-chan struct{} {
	return p.closed
}
