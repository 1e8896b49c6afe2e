package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sjsage522/teetimeworker/helpers"
	"sjsage522/teetimeworker/internal/crawler"
	apperrors "sjsage522/teetimeworker/pkg/errors"
)

const (
	DefaultReservationURL = "https://www.bearcreek.co.kr/Reservation/Reservation.aspx?strLGubun=110&strClubCode=N#aCourseSel"
	DefaultCalendarAPIURL = "https://www.bearcreek.co.kr/Reservation/XmlCalendarData.aspx"
	DefaultSiteName       = "베어크리크 춘천"

	StrategyHTTP   = crawler.StrategyHTTP
	StrategyChrome = crawler.StrategyChrome
	StrategyAuto   = crawler.StrategyAuto
)

// Config represents the application configuration
type Config struct {
	// Target month and check interval
	TargetYear    int
	TargetMonth   int
	CheckInterval time.Duration

	// Booking site
	SiteName       string
	ReservationURL string
	CalendarAPIURL string
	DetailURL      string
	ClubCode       string
	LocationCode   string

	// Fetch strategy
	FetchStrategy  string
	ChromeAddr     string
	DetailWait     time.Duration
	FetchRetries   int
	RetryDelay     time.Duration
	ProxyList      []string
	RateLimitBlock time.Duration

	// Extraction policy
	DetailFetch       bool
	KeepSlotlessDates bool

	// Telegram configuration
	TelegramBotToken string
	TelegramChatID   string
	TelegramAPIURL   string

	// Memcache configuration
	MemcacheAddr string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Error log file, rotated by size
	ErrorLogFile string

	// Environment
	Environment string

	parseErrors []error
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return LoadConfigAt(time.Now())
}

// LoadConfigAt loads the configuration, defaulting the target month to the month after now
func LoadConfigAt(now time.Time) *Config {
	next := now.AddDate(0, 1, 1-now.Day())

	cfg := &Config{
		SiteName:         getEnv("SITE_NAME", DefaultSiteName),
		ReservationURL:   getEnv("RESERVATION_URL", DefaultReservationURL),
		CalendarAPIURL:   getEnv("CALENDAR_API_URL", DefaultCalendarAPIURL),
		ClubCode:         getEnv("CLUB_CODE", "N"),
		LocationCode:     getEnv("LOCATION_CODE", "110"),
		FetchStrategy:    strings.ToLower(getEnv("FETCH_STRATEGY", StrategyAuto)),
		ChromeAddr:       getEnv("CHROME_ADDR", ""),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		MemcacheAddr:     getEnv("MEMCACHE_ADDR", ""),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisStream:      getEnv("REDIS_STREAM", "teetimes"),
		ErrorLogFile:     getEnv("ERROR_LOG_FILE", "logs/error.log"),
		Environment:      getEnv("TEETIME_ENVIRONMENT", "development"),
	}
	cfg.DetailURL = getEnv("DETAIL_URL", cfg.ReservationURL)
	// "none" turns the calendar endpoint off; the reservation page is then the only calendar
	if strings.EqualFold(cfg.CalendarAPIURL, "none") {
		cfg.CalendarAPIURL = ""
	}

	cfg.TargetYear = cfg.intEnv("YEAR", next.Year())
	cfg.TargetMonth = cfg.intEnv("MONTH", int(next.Month()))
	cfg.CheckInterval = time.Duration(cfg.intEnv("CHECK_INTERVAL_MINUTES", 30)) * time.Minute
	cfg.DetailWait = time.Duration(cfg.intEnv("DETAIL_WAIT_SECONDS", 15)) * time.Second
	cfg.FetchRetries = cfg.intEnv("FETCH_RETRIES", 3)
	cfg.RetryDelay = time.Duration(cfg.intEnv("RETRY_DELAY_SECONDS", 5)) * time.Second
	cfg.RateLimitBlock = time.Duration(cfg.intEnv("RATE_LIMIT_BLOCK_SECONDS", 600)) * time.Second
	cfg.RedisDB = cfg.intEnv("REDIS_DB", 0)
	cfg.RedisStreamMaxLength = cfg.intEnv("REDIS_STREAM_MAX_LENGTH", 1000)
	cfg.DetailFetch = cfg.boolEnv("DETAIL_FETCH", true)
	cfg.KeepSlotlessDates = cfg.boolEnv("KEEP_SLOTLESS_DATES", false)

	for _, p := range strings.Split(os.Getenv("PROXY_LIST"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.ProxyList = append(cfg.ProxyList, p)
		}
	}

	return cfg
}

// Validate checks values that would make every cycle fail
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.parseErrors...)

	if c.TargetMonth < 1 || c.TargetMonth > 12 {
		errs = append(errs, fmt.Errorf("MONTH must be between 1 and 12, got %d", c.TargetMonth))
	}
	if c.TargetYear < 2000 || c.TargetYear > 2100 {
		errs = append(errs, fmt.Errorf("YEAR out of range: %d", c.TargetYear))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("CHECK_INTERVAL_MINUTES must be positive"))
	}
	if c.ReservationURL == "" {
		errs = append(errs, fmt.Errorf("RESERVATION_URL is required"))
	}
	switch c.FetchStrategy {
	case StrategyHTTP, StrategyAuto:
	case StrategyChrome:
		if c.ChromeAddr == "" {
			errs = append(errs, fmt.Errorf("CHROME_ADDR is required for the chrome fetch strategy"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FETCH_STRATEGY %q", c.FetchStrategy))
	}
	if c.FetchRetries < 1 {
		errs = append(errs, fmt.Errorf("FETCH_RETRIES must be at least 1"))
	}

	if len(errs) > 0 {
		return apperrors.NewConfiguration("invalid configuration", errors.Join(errs...))
	}
	return nil
}

// RunContext returns the immutable snapshot handed to every check cycle
func (c *Config) RunContext() crawler.RunContext {
	return crawler.RunContext{
		Year:     c.TargetYear,
		Month:    time.Month(c.TargetMonth),
		Interval: c.CheckInterval,
	}
}

// FetcherOptions maps the fetch settings onto the crawler options; the proxy is wired by the caller
func (c *Config) FetcherOptions() crawler.FetcherOptions {
	return crawler.FetcherOptions{
		Strategy:       c.FetchStrategy,
		ReservationURL: c.ReservationURL,
		CalendarAPIURL: c.CalendarAPIURL,
		DetailURL:      c.DetailURL,
		ClubCode:       c.ClubCode,
		LocationCode:   c.LocationCode,
		ChromeAddr:     c.ChromeAddr,
		DetailWait:     c.DetailWait,
		Retries:        c.FetchRetries,
		RetryDelay:     c.RetryDelay,
		RateLimitBlock: c.RateLimitBlock,
	}
}

// SlotPolicy returns the policy for dates without confirmable time slots
func (c *Config) SlotPolicy() crawler.SlotPolicy {
	if c.KeepSlotlessDates {
		return crawler.SlotPolicyOptimistic
	}
	return crawler.SlotPolicyStrict
}

func (c *Config) intEnv(key string, defaultValue int) int {
	raw := helpers.StripComment(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func (c *Config) boolEnv(key string, defaultValue bool) bool {
	raw := helpers.StripComment(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
