package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/config"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/ingest"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/media"
	"github.com/chainfund/custodian/internal/notify"
	"github.com/chainfund/custodian/internal/providers/alchemy"
	"github.com/chainfund/custodian/internal/providers/ethrpc"
	"github.com/chainfund/custodian/internal/providers/moralis"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/withdraw"
)

// runner is the common lifecycle of every background loop
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() string
}

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadWorkerConfig(*configFile, *envPath)
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
			"service": "worker",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting custodian worker")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)
	dataStore := store.NewPGStore(db)

	// Adapters
	clock := adapter.NewClock()
	fs := adapter.NewFileSystem()
	httpClient := adapter.NewHTTPClient(30 * time.Second)

	// Per-chain JSON-RPC clients for receipt polling and gas prices
	rpc, err := ethrpc.Dial(ctx, adapter.NewEthClientDialer(), map[domain.Chain]string{
		domain.ChainEthereum: cfg.Ethereum.RPCURL,
		domain.ChainPolygon:  cfg.Polygon.RPCURL,
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to chain RPC", zap.Error(err))
	}
	defer rpc.Close()

	// Indexer clients
	moralisClient := moralis.NewClient(cfg.Moralis.APIURL, cfg.Moralis.APIKey, httpClient)
	alchemyClient := alchemy.NewClient(map[domain.Chain]string{
		domain.ChainEthereum: cfg.Alchemy.EthereumURL,
		domain.ChainPolygon:  cfg.Alchemy.PolygonURL,
	}, cfg.Alchemy.APIKey, httpClient)

	// NATS publisher for confirmation events
	publisher, err := notify.NewPublisher(notify.Config{
		URL:            cfg.NATS.URL,
		StreamName:     cfg.NATS.StreamName,
		MaxReconnects:  cfg.NATS.MaxReconnects,
		ReconnectWait:  cfg.NATS.ReconnectWait,
		ConnectionName: cfg.NATS.ConnectionName,
	}, adapter.NewNatsJetStream())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
	}
	defer publisher.Close()

	wallets := map[domain.Chain]string{
		domain.ChainEthereum: cfg.Ethereum.WalletAddress,
		domain.ChainPolygon:  cfg.Polygon.WalletAddress,
	}

	mediaCache := media.NewCache(media.CacheConfig{
		Dir:             cfg.Media.CacheDir,
		IPFSGateways:    cfg.Media.IPFSGateways,
		MaxDownloadSize: cfg.Media.MaxDownloadSize,
	}, httpClient, fs)

	runners := []runner{
		ingest.NewDepositPoller(ingest.DepositPollerConfig{
			Interval:      cfg.Ingest.DepositInterval,
			RecencyWindow: cfg.Ingest.RecencyWindow,
			Wallets:       wallets,
		}, dataStore, moralisClient, clock),
		ingest.NewDepositConfirmer(ingest.DepositConfirmerConfig{
			Interval: cfg.Ingest.ConfirmInterval,
		}, dataStore, rpc, clock),
		ingest.NewNftDepositPoller(ingest.NftDepositPollerConfig{
			Interval:      cfg.Ingest.DepositInterval,
			RecencyWindow: cfg.Ingest.RecencyWindow,
			Wallets:       wallets,
		}, dataStore, moralisClient, clock),
		ingest.NewNftDepositConfirmer(ingest.NftDepositConfirmerConfig{
			Interval:       cfg.Ingest.ConfirmInterval,
			MaxBatchAmount: cfg.Ingest.MaxNftBatchAmount,
		}, dataStore, rpc, clock),
		ingest.NewCollectionIngestor(ingest.CollectionIngestorConfig{
			Interval:          cfg.Ingest.CollectionInterval,
			MaxTokensPerCycle: cfg.Ingest.MaxTokensPerCycle,
		}, dataStore, alchemyClient, clock),
		ingest.NewGasTracker(ingest.GasTrackerConfig{
			Interval: cfg.Ingest.GasPriceInterval,
		}, dataStore, rpc, clock),
		media.NewFetcher(media.FetcherConfig{
			Interval:  cfg.Media.Interval,
			BatchSize: cfg.Media.BatchSize,
			PoolSize:  cfg.Media.Worker.PoolSize,
			QueueSize: cfg.Media.Worker.QueueSize,
		}, mediaCache, dataStore, clock),
		withdraw.NewConfirmer(withdraw.ConfirmerConfig{
			Interval: cfg.Withdraw.ConfirmInterval,
		}, dataStore, rpc, clock),
		notify.NewNotifier(notify.NotifierConfig{
			Interval: cfg.Ingest.ConfirmInterval,
		}, dataStore, publisher, clock),
	}

	// Start every loop in its own goroutine
	errChan := make(chan error, len(runners))
	for _, r := range runners {
		go func() {
			logger.InfoCtx(ctx, "Starting runner", zap.String("runner", r.Name()))
			if err := r.Start(ctx); err != nil {
				errChan <- fmt.Errorf("%s: %w", r.Name(), err)
			}
		}()
	}

	// Wait for interrupt signal or a runner failing to start
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	cancel()

	// Give the loops time to finish their current cycle
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Stop(shutdownCtx); err != nil {
				logger.ErrorCtx(shutdownCtx, err, zap.String("runner", r.Name()))
			}
		}()
	}
	wg.Wait()

	logger.Info("Worker stopped")
}
