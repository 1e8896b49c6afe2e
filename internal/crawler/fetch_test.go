package crawler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "sjsage522/teetimeworker/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reservationSite serves a reservation page that sets a session cookie,
// a calendar endpoint that requires it and a detail page
type reservationSite struct {
	*httptest.Server
	mainPage string

	mu           sync.Mutex
	reserveDates []string
}

func (s *reservationSite) ReserveDates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reserveDates...)
}

func newReservationSite(t *testing.T, mainPage string) *reservationSite {
	t.Helper()
	site := &reservationSite{mainPage: mainPage}

	mux := http.NewServeMux()
	mux.HandleFunc("/Reservation/Reservation.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("strReserveDate") != "" {
			assert.Equal(t, "N", r.URL.Query().Get("strClubCode"))
			assert.Equal(t, "110", r.URL.Query().Get("strLGubun"))
			_, err := r.Cookie("ASP.NET_SessionId")
			assert.NoError(t, err, "detail request should carry the session cookie")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, detailHTML)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, site.mainPage)
	})
	mux.HandleFunc("/Reservation/Calendar.aspx", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.Contains(t, r.Header.Get("Referer"), "/Reservation/Reservation.aspx")

		if _, err := r.Cookie("ASP.NET_SessionId"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "N", r.PostForm.Get("strClubCode"))
		assert.Equal(t, "110", r.PostForm.Get("strLGubun"))

		site.mu.Lock()
		site.reserveDates = append(site.reserveDates, r.PostForm.Get("strReserveDate"))
		site.mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, calendarHTML)
	})

	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func testFetcherOptions(base string) FetcherOptions {
	return FetcherOptions{
		Strategy:       StrategyHTTP,
		ReservationURL: base + "/Reservation/Reservation.aspx?strLGubun=110&strClubCode=N#aCourseSel",
		CalendarAPIURL: base + "/Reservation/Calendar.aspx",
		ClubCode:       "N",
		LocationCode:   "110",
		Retries:        1,
		RateLimitBlock: time.Minute,
	}
}

func TestHTTPFetcherCalendarAndDetail(t *testing.T) {
	site := newReservationSite(t, "<html><body>main</body></html>")

	fetcher, err := NewHTTPFetcher(testFetcherOptions(site.URL), nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyHTTP, fetcher.GetName())

	body, err := fetcher.FetchCalendar(context.Background(), may2025)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-05-01"}, site.ReserveDates())

	e := NewExtractor(SlotPolicyStrict)
	found, err := e.ExtractDates(body, may2025)
	require.NoError(t, err)
	require.NotEmpty(t, found)

	detail, err := fetcher.FetchDetail(context.Background(), may2025, found[0].Date, found[0].Token)
	require.NoError(t, err)
	slots, err := e.ExtractSlots(detail)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestHTTPFetcherRequestsTargetMonth(t *testing.T) {
	site := newReservationSite(t, "<html><body>main</body></html>")

	fetcher, err := NewHTTPFetcher(testFetcherOptions(site.URL), nil)
	require.NoError(t, err)

	june := RunContext{Year: 2025, Month: time.June, Interval: may2025.Interval}
	_, err = fetcher.FetchCalendar(context.Background(), may2025)
	require.NoError(t, err)
	_, err = fetcher.FetchCalendar(context.Background(), june)
	require.NoError(t, err)

	assert.Equal(t, []string{"2025-05-01", "2025-06-01"}, site.ReserveDates())
}

func TestHTTPFetcherPrefersReservationPageShowingMonth(t *testing.T) {
	// The reservation page already renders May
	site := newReservationSite(t, calendarHTML)

	fetcher, err := NewHTTPFetcher(testFetcherOptions(site.URL), nil)
	require.NoError(t, err)

	body, err := fetcher.FetchCalendar(context.Background(), may2025)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	assert.Contains(t, string(data), `class="calendar"`)
	assert.Empty(t, site.ReserveDates())

	july := RunContext{Year: 2025, Month: time.July, Interval: may2025.Interval}
	_, err = fetcher.FetchCalendar(context.Background(), july)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-07-01"}, site.ReserveDates())
}

func TestPageHasMonth(t *testing.T) {
	assert.True(t, pageHasMonth([]byte(calendarHTML), may2025))
	assert.False(t, pageHasMonth([]byte(calendarHTML), RunContext{Year: 2025, Month: time.July}))

	// Day-only labels say nothing about the month shown
	bare := `<table class="calendar"><tr><td onclick="fnSelectDate('x')">14</td></tr></table>`
	assert.False(t, pageHasMonth([]byte(bare), may2025))
}

func TestHTTPFetcherWithoutCalendarEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, calendarHTML)
	}))
	defer server.Close()

	opts := testFetcherOptions(server.URL)
	opts.CalendarAPIURL = ""
	fetcher, err := NewHTTPFetcher(opts, nil)
	require.NoError(t, err)

	body, err := fetcher.FetchCalendar(context.Background(), may2025)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	assert.Contains(t, string(data), `class="calendar"`)
}

func TestHTTPFetcherDetailFallsBackToDate(t *testing.T) {
	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = io.WriteString(w, detailHTML)
	}))
	defer server.Close()

	fetcher, err := NewHTTPFetcher(testFetcherOptions(server.URL), nil)
	require.NoError(t, err)

	_, err = fetcher.FetchDetail(context.Background(), may2025, AvailableDate{Year: 2025, Month: time.May, Day: 20}, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-05-20", got.Get("strReserveDate"))
}

func TestHTTPFetcherRateLimited(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	mockCache := NewMockCacheService()
	opts := testFetcherOptions(server.URL)
	opts.Retries = 3
	fetcher, err := NewHTTPFetcher(opts, mockCache)
	require.NoError(t, err)

	_, err = fetcher.FetchCalendar(context.Background(), may2025)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimit))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = fetcher.FetchCalendar(context.Background(), may2025)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimit))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "blocked fetcher must not hit the site")
}

func TestHTTPFetcherServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher, err := NewHTTPFetcher(testFetcherOptions(server.URL), nil)
	require.NoError(t, err)

	_, err = fetcher.FetchCalendar(context.Background(), may2025)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFetch))
}

func TestHTTPFetcherUsesProxy(t *testing.T) {
	var proxied int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&proxied, 1)
		// Requests through a forward proxy carry the absolute target URL
		assert.True(t, r.URL.IsAbs())
		_, _ = io.WriteString(w, calendarHTML)
	}))
	defer proxy.Close()

	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	opts := testFetcherOptions("http://reservation.invalid")
	opts.CalendarAPIURL = ""
	opts.Proxy = http.ProxyURL(proxyURL)
	fetcher, err := NewHTTPFetcher(opts, nil)
	require.NoError(t, err)

	_, err = fetcher.FetchCalendar(context.Background(), may2025)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&proxied))
}
