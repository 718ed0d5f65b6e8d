package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/ff-patronage-indexer/internal/adapter"
	"github.com/feral-file/ff-patronage-indexer/internal/block"
	"github.com/feral-file/ff-patronage-indexer/internal/config"
	"github.com/feral-file/ff-patronage-indexer/internal/epoch"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-patronage-indexer/internal/reducer"
	"github.com/feral-file/ff-patronage-indexer/internal/replay"
	"github.com/feral-file/ff-patronage-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	fromBlock  = flag.Uint64("from", 0, "First block to replay, overrides replay.from_block")
	toBlock    = flag.Uint64("to", 0, "Last block to replay, overrides replay.to_block")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadReplayConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if *fromBlock > 0 {
		cfg.Replay.FromBlock = *fromBlock
	}
	if *toBlock > 0 {
		cfg.Replay.ToBlock = *toBlock
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "ledger-replay",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	registry, err := epoch.NewRegistry(cfg.Deployments)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to build deployment registry", zap.Error(err))
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	dataStore := store.NewPGStore(db)

	chainID, err := cfg.Ethereum.ChainID.EIP155ChainID()
	if err != nil {
		logger.FatalCtx(ctx, "Invalid chain id", zap.Error(err))
	}

	clockAdapter := adapter.NewClock()
	ethClient, err := adapter.DialChain(ctx, adapter.NewEthClientDialer(), cfg.Ethereum.RPCURL, chainID)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to dial Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	blockProvider, err := block.NewBlockProvider(
		ethereum.NewEthereumBlockFetcher(ethClient, clockAdapter),
		block.Config{
			TTL:                cfg.Ethereum.BlockHeadTTL,
			StaleWindow:        cfg.Ethereum.BlockHeadStaleWindow,
			TimestampCacheSize: cfg.Ethereum.TimestampCacheSize,
		},
		clockAdapter,
	)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create block provider", zap.Error(err))
	}
	ethereumClient := ethereum.NewClient(cfg.Ethereum.ChainID, ethClient, blockProvider)

	stateReader, err := ethereum.NewStewardReader(ethClient, ethereum.ReaderConfig{
		InitialInterval: cfg.Reader.InitialInterval,
		MaxInterval:     cfg.Reader.MaxInterval,
		MaxElapsedTime:  cfg.Reader.MaxElapsedTime,
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create state reader", zap.Error(err))
	}

	replayer := replay.New(
		ethereumClient,
		registry,
		reducer.New(registry, dataStore, stateReader),
		replay.Config{
			FromBlock:   cfg.Replay.FromBlock,
			ToBlock:     cfg.Replay.ToBlock,
			Concurrency: cfg.Replay.Concurrency,
		},
	)

	logger.InfoCtx(ctx, "Starting Ledger Replay",
		zap.Uint64("from_block", cfg.Replay.FromBlock),
		zap.Uint64("to_block", cfg.Replay.ToBlock),
		zap.Int("concurrency", cfg.Replay.Concurrency))

	result, err := replayer.Run(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.String("component", "replay"))
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}

	logger.Info("Ledger Replay finished",
		zap.Uint64("from_block", result.FromBlock),
		zap.Uint64("to_block", result.ToBlock),
		zap.Int("logs", result.Logs),
		zap.Int("stewards", result.Stewards),
		zap.Int64("applied", result.Applied),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("duplicate", result.Duplicate))
}
