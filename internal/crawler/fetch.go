package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"sjsage522/teetimeworker/helpers"
	"sjsage522/teetimeworker/services/cache"

	"golang.org/x/net/publicsuffix"
)

// HTTPFetcher fetches the calendar with plain HTTP requests sharing one cookie session
type HTTPFetcher struct {
	BaseFetcher
	ReservationURL string
	CalendarAPIURL string
	DetailURL      string
	ClubCode       string
	LocationCode   string

	client *http.Client
}

// NewHTTPFetcher creates an HTTP fetcher; a nil opts.Proxy means direct connections
func NewHTTPFetcher(opts FetcherOptions, cacheSvc cache.CacheService) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	detailURL := opts.DetailURL
	if detailURL == "" {
		detailURL = opts.ReservationURL
	}

	return &HTTPFetcher{
		BaseFetcher:    NewBaseFetcher(StrategyHTTP, opts, cacheSvc),
		ReservationURL: opts.ReservationURL,
		CalendarAPIURL: opts.CalendarAPIURL,
		DetailURL:      detailURL,
		ClubCode:       opts.ClubCode,
		LocationCode:   opts.LocationCode,
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}, nil
}

// FetchCalendar primes the session with the reservation page. When that page already lists
// the target month it is the calendar; otherwise the calendar endpoint is asked for the month.
func (f *HTTPFetcher) FetchCalendar(ctx context.Context, rc RunContext) (io.Reader, error) {
	return f.fetchWithCache(ctx, "calendar "+rc.String(), func(ctx context.Context) (io.Reader, error) {
		page, err := helpers.FetchWithRandomHeaders(ctx, f.ReservationURL, helpers.RequestOptions{Client: f.client})
		if err != nil {
			return nil, err
		}
		if f.CalendarAPIURL == "" {
			return page, nil
		}

		body, err := io.ReadAll(page)
		if err != nil {
			return nil, fmt.Errorf("failed to read reservation page: %w", err)
		}
		if pageHasMonth(body, rc) {
			f.logs().Debug().Str("month", rc.String()).Msg("reservation page already shows the target month")
			return bytes.NewReader(body), nil
		}

		f.logs().Debug().Str("url", f.CalendarAPIURL).Str("month", rc.String()).Msg("requesting calendar data")
		return helpers.FetchWithRandomHeaders(ctx, f.CalendarAPIURL, helpers.RequestOptions{
			Form:    f.params(monthReserveDate(rc)),
			Referer: f.ReservationURL,
			AJAX:    true,
			Client:  f.client,
		})
	})
}

// FetchDetail requests the time-slot page of one date, reusing the session cookies
func (f *HTTPFetcher) FetchDetail(ctx context.Context, rc RunContext, date AvailableDate, token string) (io.Reader, error) {
	reserveDate := token
	if reserveDate == "" {
		reserveDate = date.String()
	}

	return f.fetchWithCache(ctx, "detail "+date.String(), func(ctx context.Context) (io.Reader, error) {
		return helpers.FetchWithRandomHeaders(ctx, f.DetailURL, helpers.RequestOptions{
			Query:   f.params(reserveDate),
			Referer: f.ReservationURL,
			Client:  f.client,
		})
	})
}

// monthReserveDate is the strReserveDate value that selects a calendar month
func monthReserveDate(rc RunContext) string {
	return fmt.Sprintf("%04d-%02d-01", rc.Year, int(rc.Month))
}

// pageHasMonth reports whether the page has a bookable cell whose label names the target month.
// Labels without a month are ignored since they would default to the target month.
func pageHasMonth(page []byte, rc RunContext) bool {
	cells, err := (&Extractor{Selectors: DefaultSelectors}).Cells(bytes.NewReader(page))
	if err != nil {
		return false
	}
	for _, cell := range cells {
		if !cell.Bookable {
			continue
		}
		date, matcher, err := MatchDate(cell.Label, rc, DefaultDateMatchers)
		if err != nil || (matcher != "year-month-day" && matcher != "month-day") {
			continue
		}
		if date.Year == rc.Year && date.Month == rc.Month {
			return true
		}
	}
	return false
}

func (f *HTTPFetcher) params(reserveDate string) url.Values {
	return url.Values{
		"strClubCode":    {f.ClubCode},
		"strLGubun":      {f.LocationCode},
		"strReserveDate": {reserveDate},
	}
}
