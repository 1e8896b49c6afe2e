package crawler

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"sjsage522/teetimeworker/services/cache"
)

var (
	_ cache.CacheService = (*MockCacheService)(nil)
	_ Fetcher            = (*MockFetcher)(nil)
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
	ttl   map[string]time.Duration
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
		ttl:   make(map[string]time.Duration),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	m.ttl[key] = expiration
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	delete(m.ttl, key)
	return nil
}

// MockFetcher serves canned markup keyed by date
type MockFetcher struct {
	Name        string
	Calendar    string
	CalendarErr error
	Details     map[string]string
	DetailErrs  map[string]error

	mu            sync.Mutex
	CalendarCalls int
	DetailCalls   []string
	Tokens        []string
}

func (m *MockFetcher) FetchCalendar(ctx context.Context, rc RunContext) (io.Reader, error) {
	m.mu.Lock()
	m.CalendarCalls++
	m.mu.Unlock()
	if m.CalendarErr != nil {
		return nil, m.CalendarErr
	}
	return strings.NewReader(m.Calendar), nil
}

func (m *MockFetcher) FetchDetail(ctx context.Context, rc RunContext, date AvailableDate, token string) (io.Reader, error) {
	m.mu.Lock()
	m.DetailCalls = append(m.DetailCalls, date.String())
	m.Tokens = append(m.Tokens, token)
	m.mu.Unlock()
	if err, ok := m.DetailErrs[date.String()]; ok {
		return nil, err
	}
	body, ok := m.Details[date.String()]
	if !ok {
		return nil, errors.New("no detail page")
	}
	return strings.NewReader(body), nil
}

func (m *MockFetcher) GetName() string {
	if m.Name == "" {
		return "mock"
	}
	return m.Name
}
