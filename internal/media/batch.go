package media

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/store/schema"
)

// FetcherConfig holds configuration for the background media fetcher
type FetcherConfig struct {
	// Interval is how long to wait between batches
	Interval time.Duration
	// BatchSize is the number of tokens claimed per cycle
	BatchSize int
	// PoolSize is the number of concurrent downloads
	PoolSize int
	// QueueSize bounds the worker pool's task queue
	QueueSize int
}

// Fetcher continuously caches media for tokens that still reference
// remote artwork.
type Fetcher struct {
	config FetcherConfig
	cache  *Cache
	store  store.Store
	clock  adapter.Clock
	pool   pond.Pool

	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewFetcher creates a background media fetcher
func NewFetcher(config FetcherConfig, cache *Cache, st store.Store, clock adapter.Clock) *Fetcher {
	return &Fetcher{
		config:    config,
		cache:     cache,
		store:     st,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the fetcher's name
func (f *Fetcher) Name() string {
	return "media-fetcher"
}

// Start begins the fetcher's main loop. It blocks until the context is
// canceled or Stop is called.
func (f *Fetcher) Start(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return fmt.Errorf("media fetcher already running")
	}
	defer func() {
		f.running.Store(false)
		close(f.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting media fetcher",
		zap.Int("batch_size", f.config.BatchSize),
		zap.Int("pool_size", f.config.PoolSize),
		zap.Duration("interval", f.config.Interval),
	)

	f.pool = pond.NewPool(
		f.config.PoolSize,
		pond.WithQueueSize(f.config.QueueSize),
		pond.WithContext(ctx),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Media fetcher stopping due to context cancellation", zap.Error(ctx.Err()))
			f.pool.StopAndWait()
			return nil
		case <-f.stopChan:
			logger.InfoCtx(ctx, "Media fetcher stop requested")
			f.pool.StopAndWait()
			return nil
		default:
			if err := f.runCycle(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err)
				}
			}
		}
	}
}

// Stop gracefully stops the fetcher
func (f *Fetcher) Stop(ctx context.Context) error {
	if !f.running.CompareAndSwap(true, false) {
		return nil
	}

	logger.InfoCtx(ctx, "Stopping media fetcher")
	close(f.stopChan)

	select {
	case <-f.stoppedCh:
		logger.InfoCtx(ctx, "Media fetcher stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Media fetcher stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runCycle caches media for one batch of tokens
func (f *Fetcher) runCycle(ctx context.Context) error {
	paused, err := f.store.MaintenanceEnabled(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, err)
	}
	if err != nil || paused {
		if paused {
			logger.DebugCtx(ctx, "Maintenance enabled, skipping media cycle")
		}
		if !f.sleep(ctx, f.config.Interval) {
			return ctx.Err()
		}
		return nil
	}

	startTime := f.clock.Now()

	tokens, err := f.store.ListTokensNeedingMedia(ctx, f.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list tokens needing media: %w", err)
	}

	if len(tokens) == 0 {
		if !f.sleep(ctx, f.config.Interval) {
			return ctx.Err()
		}
		return nil
	}

	var cachedCount, unsupportedCount, failedCount atomic.Int32

	for _, token := range tokens {
		f.pool.Submit(func() {
			f.cacheToken(ctx, token, &cachedCount, &unsupportedCount, &failedCount)
		})
	}

	f.pool.StopAndWait()

	// Recreate pool for next cycle
	f.pool = pond.NewPool(
		f.config.PoolSize,
		pond.WithQueueSize(f.config.QueueSize),
		pond.WithContext(ctx),
	)

	logger.InfoCtx(ctx, "Media fetch cycle completed",
		zap.Duration("duration", f.clock.Since(startTime)),
		zap.Int("total", len(tokens)),
		zap.Int32("cached", cachedCount.Load()),
		zap.Int32("unsupported", unsupportedCount.Load()),
		zap.Int32("failed", failedCount.Load()),
	)

	if !f.sleep(ctx, f.config.Interval) {
		return ctx.Err()
	}
	return nil
}

// cacheToken fetches and records one token's media
func (f *Fetcher) cacheToken(ctx context.Context, token schema.Token, cached, unsupported, failed *atomic.Int32) {
	if token.ImageURI == nil || *token.ImageURI == "" {
		return
	}

	result, err := f.cache.Fetch(ctx, *token.ImageURI)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedMedia) {
			// Record the refusal so the token is not retried forever
			unsupported.Add(1)
			if markErr := f.store.SetTokenMedia(ctx, token.ID, "", "unsupported"); markErr != nil {
				logger.ErrorCtx(ctx, markErr, zap.Int64("token_id", token.ID))
			}
			logger.WarnCtx(ctx, "Refusing to cache media",
				zap.Int64("token_id", token.ID),
				zap.Error(err),
			)
			return
		}
		failed.Add(1)
		logger.ErrorCtx(ctx, fmt.Errorf("failed to cache media: %w", err),
			zap.Int64("token_id", token.ID),
		)
		return
	}

	if err := f.store.SetTokenMedia(ctx, token.ID, result.StoredAs, result.MimeType); err != nil {
		failed.Add(1)
		logger.ErrorCtx(ctx, err, zap.Int64("token_id", token.ID))
		return
	}
	cached.Add(1)
}

// sleep waits for the given duration unless interrupted
func (f *Fetcher) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-f.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	case <-f.stopChan:
		return false
	}
}
