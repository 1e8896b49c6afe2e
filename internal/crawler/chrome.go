package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sjsage522/teetimeworker/helpers"
	"sjsage522/teetimeworker/services/cache"
)

// loadMonthScript makes sure the page shows the calendar of context.monthLabel. When the
// reservation page opens on another month it posts the calendar form from inside the page,
// so the session cookies apply, and swaps the returned calendar in.
const loadMonthScript = `
async function loadMonth(page, context) {
	await page.setViewport({ width: 1280, height: 800 });
	await page.setUserAgent(context.userAgent);
	await page.setExtraHTTPHeaders({ 'Accept-Language': 'ko-KR,ko;q=0.9,en-US;q=0.8' });
	await page.goto(context.url, { waitUntil: 'networkidle2', timeout: 45000 });
	try {
		await page.waitForSelector(context.calendarSelector, { timeout: context.waitMs });
	} catch (e) {
		console.log('calendar not rendered:', e.message);
	}
	if (!context.apiUrl || await page.$('td[title*="' + context.monthLabel + '"]')) {
		return;
	}
	await page.evaluate(async (apiUrl, form, calendarSelector) => {
		const res = await fetch(apiUrl, {
			method: 'POST',
			credentials: 'include',
			headers: {
				'Content-Type': 'application/x-www-form-urlencoded; charset=UTF-8',
				'X-Requested-With': 'XMLHttpRequest',
			},
			body: new URLSearchParams(form).toString(),
		});
		if (!res.ok) {
			throw new Error('calendar request failed: ' + res.status);
		}
		const markup = await res.text();
		const current = document.querySelector(calendarSelector);
		if (current) {
			current.outerHTML = markup;
		} else {
			document.body.insertAdjacentHTML('beforeend', markup);
		}
	}, context.apiUrl, context.form, context.calendarSelector);
}
`

// calendarScript returns the page markup once the target month's calendar is shown
const calendarScript = loadMonthScript + `module.exports = async ({ page, context }) => {
	await loadMonth(page, context);
	return { data: await page.content(), type: 'text/html' };
}`

// detailScript clicks the cell of one date and waits for the time-slot table
const detailScript = loadMonthScript + `module.exports = async ({ page, context }) => {
	await loadMonth(page, context);
	const cell = await page.$('td[title*="' + context.dateLabel + '"]');
	if (!cell) {
		throw new Error('date cell not found: ' + context.dateLabel);
	}
	await cell.click();
	await page.waitForSelector(context.slotSelector, { timeout: context.waitMs });
	return { data: await page.content(), type: 'text/html' };
}`

// ChromeFetcher drives a headless browser through a browserless /function endpoint
type ChromeFetcher struct {
	BaseFetcher
	ChromeAddr     string
	ReservationURL string
	CalendarAPIURL string
	ClubCode       string
	LocationCode   string
	DetailWait     time.Duration

	client *http.Client
}

// NewChromeFetcher creates a browser-backed fetcher for chromeAddr
func NewChromeFetcher(opts FetcherOptions, cacheSvc cache.CacheService) *ChromeFetcher {
	wait := opts.DetailWait
	if wait <= 0 {
		wait = 15 * time.Second
	}
	return &ChromeFetcher{
		BaseFetcher:    NewBaseFetcher(StrategyChrome, opts, cacheSvc),
		ChromeAddr:     strings.TrimRight(opts.ChromeAddr, "/"),
		ReservationURL: opts.ReservationURL,
		CalendarAPIURL: opts.CalendarAPIURL,
		ClubCode:       opts.ClubCode,
		LocationCode:   opts.LocationCode,
		DetailWait:     wait,
		client:         &http.Client{Timeout: 90 * time.Second},
	}
}

// FetchCalendar renders the reservation page, switching to the target month when needed
func (c *ChromeFetcher) FetchCalendar(ctx context.Context, rc RunContext) (io.Reader, error) {
	return c.fetchWithCache(ctx, "calendar "+rc.String(), func(ctx context.Context) (io.Reader, error) {
		return c.runFunction(ctx, calendarScript, c.scriptContext(rc, nil))
	})
}

// FetchDetail clicks the date cell titled "YYYY년 MM월 DD일" and returns the page once the slot table shows
func (c *ChromeFetcher) FetchDetail(ctx context.Context, rc RunContext, date AvailableDate, token string) (io.Reader, error) {
	return c.fetchWithCache(ctx, "detail "+date.String(), func(ctx context.Context) (io.Reader, error) {
		// The cell lives in the calendar of the date's own month
		month := RunContext{Year: date.Year, Month: date.Month, Interval: rc.Interval}
		return c.runFunction(ctx, detailScript, c.scriptContext(month, map[string]interface{}{
			"dateLabel":    date.KoreanLabel(),
			"slotSelector": "table.table-body",
		}))
	})
}

func (c *ChromeFetcher) scriptContext(rc RunContext, extra map[string]interface{}) map[string]interface{} {
	fnContext := map[string]interface{}{
		"url":              c.ReservationURL,
		"userAgent":        helpers.RandomUserAgent(),
		"calendarSelector": DefaultSelectors.CalendarTable,
		"monthLabel":       fmt.Sprintf("%04d년 %02d월", rc.Year, int(rc.Month)),
		"apiUrl":           c.CalendarAPIURL,
		"form": map[string]string{
			"strClubCode":    c.ClubCode,
			"strLGubun":      c.LocationCode,
			"strReserveDate": monthReserveDate(rc),
		},
		"waitMs": c.DetailWait.Milliseconds(),
	}
	for k, v := range extra {
		fnContext[k] = v
	}
	return fnContext
}

func (c *ChromeFetcher) runFunction(ctx context.Context, code string, fnContext map[string]interface{}) (io.Reader, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"code":    code,
		"context": fnContext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal function payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ChromeAddr+"/function", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create function request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from browser function: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read browser function response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w; browser endpoint busy", helpers.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &helpers.StatusError{URL: c.ChromeAddr + "/function", StatusCode: resp.StatusCode}
	}

	content := unwrapFunctionResult(body)
	if !strings.Contains(content, "<html") && !strings.Contains(content, "<body") && !strings.Contains(content, "<table") {
		preview := content
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logs().Debug().Str("preview", preview).Msg("non-HTML browser response")
		return nil, fmt.Errorf("invalid or empty HTML response from browser (received %d bytes)", len(content))
	}

	c.logs().Debug().Int("bytes", len(content)).Msg("browser function returned page")
	return strings.NewReader(content), nil
}

// unwrapFunctionResult extracts the page markup from the JSON envelopes browserless may return
func unwrapFunctionResult(body []byte) string {
	content := string(body)
	if !strings.HasPrefix(strings.TrimSpace(content), "{") {
		return content
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return content
	}

	if data, ok := result["data"].(map[string]interface{}); ok {
		if html, ok := data["content"].(string); ok && html != "" {
			return html
		}
	}
	for _, key := range []string{"data", "content", "result", "html"} {
		if html, ok := result[key].(string); ok && html != "" {
			return html
		}
	}
	return content
}
