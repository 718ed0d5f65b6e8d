package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/messaging"
)

// Config holds the configuration for Ethereum subscription
type Config struct {
	WebSocketURL string       // WebSocket URL (e.g., wss://mainnet.infura.io/ws/v3/YOUR_PROJECT_ID)
	ChainID      domain.Chain // e.g., "eip155:1" for Ethereum mainnet
	// Contracts are the steward and artwork contracts of every configured deployment
	Contracts []common.Address
}

type ethSubscriber struct {
	client    EthereumClient
	chainID   domain.Chain
	contracts []common.Address
}

// NewSubscriber creates a subscriber for the logs of the configured patronage contracts
func NewSubscriber(cfg Config, ethereumClient EthereumClient) (messaging.Subscriber, error) {
	if len(cfg.Contracts) == 0 {
		return nil, fmt.Errorf("no contracts to subscribe to")
	}

	return &ethSubscriber{
		client:    ethereumClient,
		chainID:   cfg.ChainID,
		contracts: cfg.Contracts,
	}, nil
}

// SubscribeEvents streams patronage events from fromBlock onwards.
// A handler error stops the subscription so the caller resumes from its last saved cursor.
func (s *ethSubscriber) SubscribeEvents(ctx context.Context, fromBlock uint64, handler messaging.EventHandler) error {
	query := ethereum.FilterQuery{
		Addresses: s.contracts,
		Topics:    patronageTopics(),
	}
	if fromBlock > 0 {
		query.FromBlock = new(big.Int).SetUint64(fromBlock)
	}

	logs := make(chan types.Log)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSubscriptionFailed, err)
	}
	defer func() {
		sub.Unsubscribe()
		logger.InfoCtx(ctx, "Unsubscribed from patronage logs")
	}()

	logger.InfoCtx(ctx, "Subscribed to patronage logs",
		zap.Uint64("fromBlock", fromBlock),
		zap.Int("contracts", len(s.contracts)))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("%w: %w", domain.ErrSubscriptionFailed, err)
		case vLog := <-logs:
			event, err := s.client.ParseEventLog(ctx, vLog)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logger.ErrorCtx(ctx, err,
					zap.String("message", "Error parsing log"),
					zap.String("txHash", vLog.TxHash.Hex()),
					zap.Uint("logIndex", vLog.Index))
				continue
			}

			if event == nil {
				continue
			}

			if err := handler(event); err != nil {
				return fmt.Errorf("failed to handle event %s: %w", event.Key(), err)
			}
		}
	}
}

// GetLatestBlock returns the latest block number
func (s *ethSubscriber) GetLatestBlock(ctx context.Context) (uint64, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// Close closes the connection
func (s *ethSubscriber) Close() {
	if s.client == nil {
		return
	}

	s.client.Close()
	logger.Info("Ethereum WebSocket connection closed")
}
