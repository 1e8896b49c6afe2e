package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sjsage522/teetimeworker/logger"
	apperrors "sjsage522/teetimeworker/pkg/errors"
	"sjsage522/teetimeworker/services/cache"
)

// Fetch strategies
const (
	StrategyHTTP   = "http"
	StrategyChrome = "chrome"
	StrategyAuto   = "auto"
)

// FetcherOptions carries everything a fetch strategy needs from the configuration
type FetcherOptions struct {
	Strategy       string
	ReservationURL string
	CalendarAPIURL string
	DetailURL      string
	ClubCode       string
	LocationCode   string
	ChromeAddr     string
	DetailWait     time.Duration
	Retries        int
	RetryDelay     time.Duration
	RateLimitBlock time.Duration
	// Proxy selects the proxy for each HTTP request; nil connects directly
	Proxy func(*http.Request) (*url.URL, error)
}

// NewFetcher creates the fetcher for opts.Strategy. "auto" tries HTTP first and falls back
// to the browser when a browser address is configured.
func NewFetcher(opts FetcherOptions, cacheSvc cache.CacheService) (Fetcher, error) {
	switch strings.ToLower(opts.Strategy) {
	case StrategyHTTP:
		return NewHTTPFetcher(opts, cacheSvc)
	case StrategyChrome:
		if opts.ChromeAddr == "" {
			return nil, apperrors.NewConfiguration("chrome strategy requires CHROME_ADDR", nil)
		}
		return NewChromeFetcher(opts, cacheSvc), nil
	case StrategyAuto, "":
		httpFetcher, err := NewHTTPFetcher(opts, cacheSvc)
		if err != nil {
			return nil, err
		}
		if opts.ChromeAddr == "" {
			return httpFetcher, nil
		}
		return NewFallbackFetcher(httpFetcher, NewChromeFetcher(opts, cacheSvc)), nil
	default:
		return nil, apperrors.NewConfiguration(fmt.Sprintf("unknown fetch strategy %q", opts.Strategy), nil)
	}
}

// FallbackFetcher tries each fetcher in order until one succeeds
type FallbackFetcher struct {
	fetchers []Fetcher
	log      *logger.Logger
}

// NewFallbackFetcher chains fetchers; the first one is preferred
func NewFallbackFetcher(fetchers ...Fetcher) *FallbackFetcher {
	return &FallbackFetcher{
		fetchers: fetchers,
		log:      logger.ForFetcher("fallback"),
	}
}

// FetchCalendar returns the first successful calendar page
func (f *FallbackFetcher) FetchCalendar(ctx context.Context, rc RunContext) (io.Reader, error) {
	return f.try(ctx, "calendar", func(fetcher Fetcher) (io.Reader, error) {
		return fetcher.FetchCalendar(ctx, rc)
	})
}

// FetchDetail returns the first successful detail page
func (f *FallbackFetcher) FetchDetail(ctx context.Context, rc RunContext, date AvailableDate, token string) (io.Reader, error) {
	return f.try(ctx, "detail "+date.String(), func(fetcher Fetcher) (io.Reader, error) {
		return fetcher.FetchDetail(ctx, rc, date, token)
	})
}

// GetName joins the chained strategy names
func (f *FallbackFetcher) GetName() string {
	names := make([]string, 0, len(f.fetchers))
	for _, fetcher := range f.fetchers {
		names = append(names, fetcher.GetName())
	}
	return strings.Join(names, "+")
}

func (f *FallbackFetcher) try(ctx context.Context, what string, fetch func(Fetcher) (io.Reader, error)) (io.Reader, error) {
	var errs []error
	for i, fetcher := range f.fetchers {
		body, err := fetch(fetcher)
		if err == nil {
			if i > 0 {
				f.log.Info().Str("target", what).Str("strategy", fetcher.GetName()).Msg("fallback strategy succeeded")
			}
			return body, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		f.log.Warn().Err(err).Str("target", what).Str("strategy", fetcher.GetName()).Msg("strategy failed")
	}
	return nil, apperrors.NewFetch(f.GetName(), "all fetch strategies failed for "+what, errors.Join(errs...))
}
