package main

import (
	"context"
	"errors"
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
	"github.com/feral-file/ff-patronage-indexer/internal/bridge"
	"github.com/feral-file/ff-patronage-indexer/internal/config"
	"github.com/feral-file/ff-patronage-indexer/internal/epoch"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-patronage-indexer/internal/providers/jetstream"
	"github.com/feral-file/ff-patronage-indexer/internal/reducer"
	"github.com/feral-file/ff-patronage-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadLedgerWorkerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "ledger-worker",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Ledger Worker")

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
	logger.InfoCtx(ctx, "Connected to database")

	dataStore := store.NewPGStore(db)

	chainID, err := cfg.Ethereum.ChainID.EIP155ChainID()
	if err != nil {
		logger.FatalCtx(ctx, "Invalid chain id", zap.Error(err))
	}

	// Contract reads go over plain RPC
	ethClient, err := adapter.DialChain(ctx, adapter.NewEthClientDialer(), cfg.Ethereum.RPCURL, chainID)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to dial Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	stateReader, err := ethereum.NewStewardReader(ethClient, ethereum.ReaderConfig{
		InitialInterval: cfg.Reader.InitialInterval,
		MaxInterval:     cfg.Reader.MaxInterval,
		MaxElapsedTime:  cfg.Reader.MaxElapsedTime,
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create state reader", zap.Error(err))
	}

	ledgerReducer := reducer.New(registry, dataStore, stateReader)

	eventBridge, err := bridge.NewBridge(
		bridge.Config{
			Config: jetstream.Config{
				URL:            cfg.NATS.URL,
				StreamName:     cfg.NATS.StreamName,
				MaxReconnects:  cfg.NATS.MaxReconnects,
				ReconnectWait:  cfg.NATS.ReconnectWait,
				ConnectionName: cfg.NATS.ConnectionName,
			},
			ConsumerName:   cfg.NATS.ConsumerName,
			AckWaitTimeout: cfg.NATS.AckWait,
			MaxDeliver:     cfg.NATS.MaxDeliver,
			NakDelay:       cfg.NATS.NakDelay,
		},
		adapter.NewNatsJetStream(),
		ledgerReducer,
		adapter.NewJSON(),
	)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create event bridge", zap.Error(err))
	}
	defer eventBridge.Close()
	logger.InfoCtx(ctx, "Event bridge created", zap.String("stream", cfg.NATS.StreamName), zap.String("consumer", cfg.NATS.ConsumerName))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := eventBridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "bridge"))
		cancel()
	}

	// Give some time for graceful shutdown
	time.Sleep(time.Second)

	logger.Info("Ledger Worker stopped")
}
