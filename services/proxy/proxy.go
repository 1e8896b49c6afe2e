package proxy

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ProxyManager interface for managing proxies
type ProxyManager interface {
	UpdateProxies() error
	Next() (*url.URL, error)
	Proxy(req *http.Request) (*url.URL, error)
}

// ProxyInfo holds proxy information with latency
type ProxyInfo struct {
	URL      *url.URL      `json:"-"`
	Address  string        `json:"address"`
	Latency  time.Duration `json:"latency"`
	LastTest time.Time     `json:"last_test"`
	Working  bool          `json:"working"`
}

// StaticProxyManager rotates through a fixed proxy list, fastest reachable proxies first
type StaticProxyManager struct {
	all            []ProxyInfo
	working        []ProxyInfo
	next           int
	mutex          sync.Mutex
	lastUpdate     time.Time
	updateInterval time.Duration
	dialTimeout    time.Duration
}

// NewStaticProxyManager parses entries like "host:port", "http://host:port" or "socks5://host:port"
func NewStaticProxyManager(entries []string) (*StaticProxyManager, error) {
	pm := &StaticProxyManager{
		updateInterval: 30 * time.Minute,
		dialTimeout:    5 * time.Second,
	}
	for _, entry := range entries {
		info, err := parseProxy(entry)
		if err != nil {
			return nil, err
		}
		pm.all = append(pm.all, info)
	}
	return pm, nil
}

func parseProxy(entry string) (ProxyInfo, error) {
	entry = strings.TrimSpace(entry)
	if !strings.Contains(entry, "://") {
		entry = "http://" + entry
	}
	u, err := url.Parse(entry)
	if err != nil {
		return ProxyInfo{}, fmt.Errorf("invalid proxy %q: %w", entry, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return ProxyInfo{}, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Port() == "" {
		return ProxyInfo{}, fmt.Errorf("proxy %q has no port", entry)
	}
	return ProxyInfo{URL: u, Address: u.Host}, nil
}

// Len returns the number of configured proxies
func (pm *StaticProxyManager) Len() int {
	return len(pm.all)
}

// testProxyLatency checks that the proxy accepts TCP connections
func (pm *StaticProxyManager) testProxyLatency(proxy *ProxyInfo) {
	testStart := time.Now()
	conn, err := net.DialTimeout("tcp", proxy.Address, pm.dialTimeout)
	if err != nil {
		log.Debug().Str("proxy", proxy.Address).Err(err).Msg("TCP connection failed")
		proxy.Working = false
		proxy.Latency = time.Hour
		return
	}
	conn.Close()

	proxy.Working = true
	proxy.Latency = time.Since(testStart)
	proxy.LastTest = time.Now()
}

// UpdateProxies tests every configured proxy and orders the reachable ones by latency
func (pm *StaticProxyManager) UpdateProxies() error {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.update()
}

func (pm *StaticProxyManager) update() error {
	if len(pm.all) == 0 {
		return fmt.Errorf("no proxies configured")
	}

	var wg sync.WaitGroup
	for i := range pm.all {
		wg.Add(1)
		go func(proxy *ProxyInfo) {
			defer wg.Done()
			pm.testProxyLatency(proxy)
		}(&pm.all[i])
	}
	wg.Wait()

	working := make([]ProxyInfo, 0, len(pm.all))
	for _, proxy := range pm.all {
		if proxy.Working {
			working = append(working, proxy)
		}
	}
	sort.Slice(working, func(i, j int) bool {
		return working[i].Latency < working[j].Latency
	})

	pm.working = working
	pm.next = 0
	pm.lastUpdate = time.Now()

	log.Info().
		Int("configured", len(pm.all)).
		Int("working", len(working)).
		Msg("Updated proxy list")

	if len(working) == 0 {
		return fmt.Errorf("no working proxies available")
	}
	return nil
}

// Next returns the next working proxy in rotation, refreshing a stale list first
func (pm *StaticProxyManager) Next() (*url.URL, error) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if pm.lastUpdate.IsZero() || time.Since(pm.lastUpdate) > pm.updateInterval {
		if err := pm.update(); err != nil {
			log.Warn().Err(err).Msg("Failed to update proxies")
		}
	}

	if len(pm.working) == 0 {
		return nil, fmt.Errorf("no working proxies available")
	}

	proxy := pm.working[pm.next%len(pm.working)]
	pm.next++
	return proxy.URL, nil
}

// Proxy is an http.Transport proxy function; without a working proxy requests go direct
func (pm *StaticProxyManager) Proxy(req *http.Request) (*url.URL, error) {
	u, err := pm.Next()
	if err != nil {
		log.Debug().Err(err).Str("host", req.URL.Host).Msg("Connecting without proxy")
		return nil, nil
	}
	return u, nil
}

// GetProxyStats returns current proxy statistics
func (pm *StaticProxyManager) GetProxyStats() map[string]interface{} {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	stats := map[string]interface{}{
		"total_proxies":   len(pm.all),
		"working_proxies": len(pm.working),
		"last_update":     pm.lastUpdate,
	}
	if len(pm.working) > 0 {
		stats["fastest_latency"] = pm.working[0].Latency
		stats["fastest_proxy"] = pm.working[0].Address
	}
	return stats
}
