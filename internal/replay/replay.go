package replay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/epoch"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-patronage-indexer/internal/reducer"
)

// DEFAULT_CONCURRENCY is the number of stewards replayed in parallel
const DEFAULT_CONCURRENCY = 4

// Config holds the configuration for a historical replay
type Config struct {
	FromBlock uint64
	// ToBlock is inclusive; zero means the latest block
	ToBlock     uint64
	Concurrency int
}

// Applier reduces one patronage event into the ledger
type Applier interface {
	Apply(ctx context.Context, event *domain.PatronageEvent) (reducer.Outcome, error)
}

// Result summarizes a replay
type Result struct {
	FromBlock uint64
	ToBlock   uint64
	Logs      int
	Stewards  int
	Applied   int64
	Skipped   int64
	Duplicate int64
}

// Replayer rebuilds the ledger from historical logs.
// Each steward's events are reduced in chain order; different stewards run concurrently.
type Replayer struct {
	client   ethereum.EthereumClient
	registry *epoch.Registry
	applier  Applier
	config   Config
}

// New creates a replayer
func New(client ethereum.EthereumClient, registry *epoch.Registry, applier Applier, cfg Config) *Replayer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DEFAULT_CONCURRENCY
	}
	return &Replayer{
		client:   client,
		registry: registry,
		applier:  applier,
		config:   cfg,
	}
}

// shard is the ordered event list of one canonical steward
type shard struct {
	stewardID string
	events    []*domain.PatronageEvent
}

// Run fetches and reduces every patronage event in the configured block range
func (r *Replayer) Run(ctx context.Context) (*Result, error) {
	toBlock := r.config.ToBlock
	if toBlock == 0 {
		header, err := r.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get latest block: %w", err)
		}
		toBlock = header.Number.Uint64()
	}
	if toBlock < r.config.FromBlock {
		return nil, fmt.Errorf("invalid block range [%d, %d]", r.config.FromBlock, toBlock)
	}

	logger.InfoCtx(ctx, "Fetching patronage logs",
		zap.Uint64("fromBlock", r.config.FromBlock),
		zap.Uint64("toBlock", toBlock))

	logs, err := r.client.FilterPatronageLogs(ctx, r.registry.ContractAddresses(), r.config.FromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	shards, err := r.shard(ctx, logs)
	if err != nil {
		return nil, err
	}

	result := &Result{
		FromBlock: r.config.FromBlock,
		ToBlock:   toBlock,
		Logs:      len(logs),
		Stewards:  len(shards),
	}

	pool := pond.NewPool(r.config.Concurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	tasks := make([]pond.Task, 0, len(shards))
	for _, s := range shards {
		s := s
		tasks = append(tasks, pool.SubmitErr(func() error {
			return r.replayShard(ctx, s, result)
		}))
	}

	var errs []error
	for _, task := range tasks {
		if err := task.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}

	logger.InfoCtx(ctx, "Replay finished",
		zap.Int("logs", result.Logs),
		zap.Int("stewards", result.Stewards),
		zap.Int64("applied", result.Applied),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("duplicate", result.Duplicate))

	return result, nil
}

// shard parses the logs and groups them by canonical steward, keeping chain order within a group
func (r *Replayer) shard(ctx context.Context, logs []types.Log) ([]*shard, error) {
	var shards []*shard
	byID := make(map[string]*shard)

	for _, vLog := range logs {
		event, err := r.client.ParseEventLog(ctx, vLog)
		if err != nil {
			return nil, fmt.Errorf("failed to parse log %s:%d: %w", vLog.TxHash.Hex(), vLog.Index, err)
		}
		if event == nil {
			continue
		}

		policy, err := r.registry.PolicyFor(event.ContractAddress)
		if err != nil {
			return nil, err
		}

		s, ok := byID[policy.StewardID()]
		if !ok {
			s = &shard{stewardID: policy.StewardID()}
			byID[s.stewardID] = s
			shards = append(shards, s)
		}
		s.events = append(s.events, event)
	}

	return shards, nil
}

func (r *Replayer) replayShard(ctx context.Context, s *shard, result *Result) error {
	logger.InfoCtx(ctx, "Replaying steward", zap.String("steward", s.stewardID), zap.Int("events", len(s.events)))

	for _, event := range s.events {
		outcome, err := r.applier.Apply(ctx, event)
		if err != nil {
			return fmt.Errorf("steward %s: failed to apply %s: %w", s.stewardID, event.Key(), err)
		}

		switch outcome {
		case reducer.OutcomeApplied:
			atomic.AddInt64(&result.Applied, 1)
		case reducer.OutcomeSkipped:
			atomic.AddInt64(&result.Skipped, 1)
		case reducer.OutcomeDuplicate:
			atomic.AddInt64(&result.Duplicate, 1)
		}
	}

	return nil
}
