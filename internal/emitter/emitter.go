package emitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-patronage-indexer/internal/adapter"
	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/messaging"
	"github.com/feral-file/ff-patronage-indexer/internal/store"
)

// ErrPublisherClosed is returned when the message broker connection goes away while running
var ErrPublisherClosed = errors.New("publisher closed")

// Config holds the configuration for the event emitter
type Config struct {
	ChainID         domain.Chain
	StartBlock      uint64
	CursorSaveFreq  uint64        // Save cursor every N blocks
	CursorSaveDelay time.Duration // Or save cursor every N seconds
}

// Emitter forwards patronage events from the chain to the message broker
type Emitter interface {
	// Run starts the event emitter
	Run(ctx context.Context) error
	// Close closes the emitter and cleans up resources
	Close()
}

type emitter struct {
	subscriber messaging.Subscriber
	publisher  messaging.Publisher
	cursors    store.CursorStore
	config     Config
	clock      adapter.Clock
}

// NewEmitter creates a new event emitter
func NewEmitter(
	sub messaging.Subscriber,
	pub messaging.Publisher,
	cursors store.CursorStore,
	cfg Config,
	clock adapter.Clock,
) Emitter {
	return &emitter{
		subscriber: sub,
		publisher:  pub,
		cursors:    cursors,
		config:     cfg,
		clock:      clock,
	}
}

// startBlock resolves where the subscription begins: the configured block,
// the block after the saved cursor, or the chain head
func (e *emitter) startBlock(ctx context.Context) (uint64, error) {
	chain := string(e.config.ChainID)

	if e.config.StartBlock > 0 {
		logger.InfoCtx(ctx, "Starting from configured block", zap.String("chain", chain), zap.Uint64("block", e.config.StartBlock))
		return e.config.StartBlock, nil
	}

	lastBlock, err := e.cursors.GetBlockCursor(ctx, chain)
	if err != nil {
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}
	if lastBlock > 0 {
		logger.InfoCtx(ctx, "Resuming after last completed block", zap.String("chain", chain), zap.Uint64("block", lastBlock+1))
		return lastBlock + 1, nil
	}

	latestBlock, err := e.subscriber.GetLatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	logger.InfoCtx(ctx, "Starting from latest block", zap.String("chain", chain), zap.Uint64("block", latestBlock))
	return latestBlock, nil
}

// Run subscribes from the start block and publishes every event in order.
// The cursor only ever records blocks whose events were all published.
func (e *emitter) Run(ctx context.Context) error {
	startBlock, err := e.startBlock(ctx)
	if err != nil {
		return err
	}

	chain := string(e.config.ChainID)
	errCh := make(chan error, 1)

	go func() {
		var currentBlock, lastSavedBlock uint64
		lastSaveTime := e.clock.Now()

		handler := func(event *domain.PatronageEvent) error {
			if event.BlockNumber > currentBlock {
				if currentBlock > 0 {
					completed := currentBlock
					shouldSave := completed-lastSavedBlock >= e.config.CursorSaveFreq ||
						e.clock.Since(lastSaveTime) >= e.config.CursorSaveDelay

					if shouldSave {
						if err := e.cursors.SetBlockCursor(ctx, chain, completed); err != nil {
							logger.WarnCtx(ctx, "Failed to save block cursor", zap.Uint64("block", completed), zap.Error(err))
						} else {
							lastSavedBlock = completed
							lastSaveTime = e.clock.Now()
						}
					}
				}
				currentBlock = event.BlockNumber
			}

			if err := e.publisher.PublishEvent(ctx, event); err != nil {
				return fmt.Errorf("failed to publish event %s: %w", event.Key(), err)
			}
			return nil
		}

		logger.InfoCtx(ctx, "Starting event subscription", zap.String("chain", chain))
		if err := e.subscriber.SubscribeEvents(ctx, startBlock, handler); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-e.publisher.CloseChan():
		return ErrPublisherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the emitter and cleans up resources
func (e *emitter) Close() {
	e.subscriber.Close()
	e.publisher.Close()
}
