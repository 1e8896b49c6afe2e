package crawler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "sjsage522/teetimeworker/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type functionRequest struct {
	Code    string                 `json:"code"`
	Context map[string]interface{} `json:"context"`
}

func newBrowserless(t *testing.T, respond func(w http.ResponseWriter, req functionRequest)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/function", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req functionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		respond(w, req)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestChromeFetcherCalendar(t *testing.T) {
	server := newBrowserless(t, func(w http.ResponseWriter, req functionRequest) {
		assert.Contains(t, req.Code, "waitForSelector")
		assert.Equal(t, "https://example.com/reserve", req.Context["url"])
		assert.Equal(t, "table.calendar", req.Context["calendarSelector"])
		assert.NotEmpty(t, req.Context["userAgent"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"data": calendarHTML, "type": "text/html"})
	})

	fetcher := NewChromeFetcher(FetcherOptions{
		ChromeAddr:     server.URL + "/",
		ReservationURL: "https://example.com/reserve",
		Retries:        1,
	}, nil)
	assert.Equal(t, StrategyChrome, fetcher.GetName())
	assert.Equal(t, 15*time.Second, fetcher.DetailWait)

	body, err := fetcher.FetchCalendar(context.Background(), may2025)
	require.NoError(t, err)

	found, err := NewExtractor(SlotPolicyStrict).ExtractDates(body, may2025)
	require.NoError(t, err)
	assert.Len(t, found, 3)
}

func TestChromeFetcherDetailClicksDateCell(t *testing.T) {
	server := newBrowserless(t, func(w http.ResponseWriter, req functionRequest) {
		assert.Contains(t, req.Code, "click()")
		assert.Equal(t, "2025년 05월 14일", req.Context["dateLabel"])
		assert.Equal(t, "table.table-body", req.Context["slotSelector"])
		assert.Equal(t, float64(20000), req.Context["waitMs"])

		// Raw markup is accepted as well as the JSON envelope
		_, _ = io.WriteString(w, detailHTML)
	})

	fetcher := NewChromeFetcher(FetcherOptions{
		ChromeAddr:     server.URL,
		ReservationURL: "https://example.com/reserve",
		DetailWait:     20 * time.Second,
		Retries:        1,
	}, nil)

	body, err := fetcher.FetchDetail(context.Background(), may2025, AvailableDate{Year: 2025, Month: time.May, Day: 14}, "20250514")
	require.NoError(t, err)

	slots, err := NewExtractor(SlotPolicyStrict).ExtractSlots(body)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestChromeFetcherSelectsTargetMonth(t *testing.T) {
	var mu sync.Mutex
	var forms []map[string]interface{}
	var labels []interface{}
	server := newBrowserless(t, func(w http.ResponseWriter, req functionRequest) {
		assert.Contains(t, req.Code, "URLSearchParams")
		assert.Equal(t, "https://example.com/Reservation/XmlCalendarData.aspx", req.Context["apiUrl"])

		form, _ := req.Context["form"].(map[string]interface{})
		mu.Lock()
		forms = append(forms, form)
		labels = append(labels, req.Context["monthLabel"])
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"data": calendarHTML})
	})

	fetcher := NewChromeFetcher(FetcherOptions{
		ChromeAddr:     server.URL,
		ReservationURL: "https://example.com/reserve",
		CalendarAPIURL: "https://example.com/Reservation/XmlCalendarData.aspx",
		ClubCode:       "N",
		LocationCode:   "110",
		Retries:        1,
	}, nil)

	june := RunContext{Year: 2025, Month: time.June, Interval: may2025.Interval}
	_, err := fetcher.FetchCalendar(context.Background(), may2025)
	require.NoError(t, err)
	_, err = fetcher.FetchCalendar(context.Background(), june)
	require.NoError(t, err)
	// Detail pages load the month of the clicked date
	_, err = fetcher.FetchDetail(context.Background(), may2025, AvailableDate{Year: 2025, Month: time.June, Day: 1}, "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, forms, 3)
	assert.Equal(t, "2025-05-01", forms[0]["strReserveDate"])
	assert.Equal(t, "2025-06-01", forms[1]["strReserveDate"])
	assert.Equal(t, "2025-06-01", forms[2]["strReserveDate"])
	assert.Equal(t, "N", forms[0]["strClubCode"])
	assert.Equal(t, "110", forms[0]["strLGubun"])
	assert.Equal(t, []interface{}{"2025년 05월", "2025년 06월", "2025년 06월"}, labels)
}

func TestChromeFetcherErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	server := newBrowserless(t, func(w http.ResponseWriter, req functionRequest) {
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "timeout"})
	})

	fetcher := NewChromeFetcher(FetcherOptions{ChromeAddr: server.URL, Retries: 1}, nil)

	_, err := fetcher.FetchCalendar(context.Background(), may2025)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFetch))

	status.Store(http.StatusOK)
	_, err = fetcher.FetchCalendar(context.Background(), may2025)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or empty HTML")

	status.Store(http.StatusTooManyRequests)
	_, err = fetcher.FetchCalendar(context.Background(), may2025)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimit))
}

func TestUnwrapFunctionResult(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"raw", "<html></html>", "<html></html>"},
		{"data string", `{"data":"<html>a</html>"}`, "<html>a</html>"},
		{"data object", `{"data":{"content":"<html>b</html>"}}`, "<html>b</html>"},
		{"result", `{"result":"<html>c</html>"}`, "<html>c</html>"},
		{"html", `{"html":"<html>d</html>"}`, "<html>d</html>"},
		{"broken json", `{"data":`, `{"data":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unwrapFunctionResult([]byte(tt.body)))
		})
	}
}
