package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"sjsage522/teetimeworker/helpers"
	"sjsage522/teetimeworker/logger"
	apperrors "sjsage522/teetimeworker/pkg/errors"
	"sjsage522/teetimeworker/services/cache"
)

// BaseFetcher provides the rate-limit block and retry loop shared by every fetch strategy
type BaseFetcher struct {
	Strategy   string
	CacheKey   string
	CacheSvc   cache.CacheService
	BlockTime  time.Duration
	Retries    int
	RetryDelay time.Duration

	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
	log   *logger.Logger
}

// NewBaseFetcher creates the shared fetch state for a strategy
func NewBaseFetcher(strategy string, opts FetcherOptions, cacheSvc cache.CacheService) BaseFetcher {
	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}
	return BaseFetcher{
		Strategy:   strategy,
		CacheKey:   "teetime_rate_limited_" + strategy,
		CacheSvc:   cacheSvc,
		BlockTime:  opts.RateLimitBlock,
		Retries:    retries,
		RetryDelay: opts.RetryDelay,
		sleep:      sleepContext,
		log:        logger.ForFetcher(strategy),
	}
}

// GetName returns the strategy name for logging
func (b *BaseFetcher) GetName() string {
	return b.Strategy
}

// fetchWithCache runs fetch under the rate-limit block, retrying fetch errors with linear backoff
func (b *BaseFetcher) fetchWithCache(ctx context.Context, what string, fetch func(ctx context.Context) (io.Reader, error)) (io.Reader, error) {
	if b.blocked() {
		return nil, apperrors.NewRateLimit(b.Strategy, b.BlockTime)
	}

	log := b.logs().WithContext(ctx)
	retries := max(b.Retries, 1)
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		body, err := fetch(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().Str("target", what).Int("attempt", attempt).Msg("fetch succeeded after retry")
			}
			return body, nil
		}

		if errors.Is(err, helpers.ErrRateLimited) {
			b.block()
			log.Warn().Err(err).Str("target", what).Dur("block", b.BlockTime).Msg("rate limited")
			return nil, apperrors.NewRateLimit(b.Strategy, b.BlockTime)
		}

		lastErr = err
		var checkErr *apperrors.CheckError
		if !errors.As(err, &checkErr) {
			lastErr = apperrors.NewFetch(b.Strategy, what, err)
		}
		if !apperrors.IsRetryable(lastErr) || ctx.Err() != nil {
			return nil, lastErr
		}

		if attempt < retries {
			delay := b.RetryDelay * time.Duration(attempt)
			log.Warn().Err(err).
				Str("target", what).
				Int("attempt", attempt).
				Dur("retry_in", delay).
				Msg("fetch failed, retrying")
			if sleepErr := b.wait(ctx, delay); sleepErr != nil {
				return nil, apperrors.NewFetch(b.Strategy, what, sleepErr)
			}
		}
	}

	return nil, fmt.Errorf("%d attempts: %w", retries, lastErr)
}

// wait and logs fall back to the defaults for fetchers built without NewBaseFetcher
func (b *BaseFetcher) wait(ctx context.Context, d time.Duration) error {
	if b.sleep != nil {
		return b.sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (b *BaseFetcher) logs() *logger.Logger {
	if b.log != nil {
		return b.log
	}
	return logger.ForFetcher(b.Strategy)
}

func (b *BaseFetcher) blocked() bool {
	if b.CacheSvc == nil || b.CacheKey == "" {
		return false
	}
	_, err := b.CacheSvc.Get(b.CacheKey)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		b.logs().Debug().Err(err).Msg("rate limit lookup failed")
	}
	return false
}

func (b *BaseFetcher) block() {
	if b.CacheSvc == nil || b.CacheKey == "" || b.BlockTime <= 0 {
		return
	}
	value := []byte(fmt.Sprintf("%d", b.BlockTime/time.Second))
	if err := b.CacheSvc.Set(b.CacheKey, value, b.BlockTime); err != nil {
		b.logs().Debug().Err(err).Msg("failed to set rate limit cache")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
