// Package testutil provides testing utilities for the marketsync engine.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockResponse defines the behavior for a mock provider endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockGecko is a configurable mock CoinGecko server for testing.
type MockGecko struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount int
	PathCounts   map[string]int
}

// NewMockGecko creates a new mock provider server.
func NewMockGecko() *MockGecko {
	mock := &MockGecko{
		handlers:   map[string]http.HandlerFunc{},
		PathCounts: map[string]int{},
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		// Unconfigured paths look like an unknown coin.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"coin not found"}`))
	}))

	return mock
}

// URL returns the mock server URL (usable as the transport base URL).
func (m *MockGecko) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGecko) Close() {
	m.server.Close()
}

// Requests returns the total number of requests received.
func (m *MockGecko) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// RequestsFor returns the number of requests received for a path.
func (m *MockGecko) RequestsFor(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PathCounts[path]
}

// SetHandler sets a custom handler for a path.
func (m *MockGecko) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGecko) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetRateLimitedThen configures a path to answer 429 a number of times
// before delegating to the given handler.
func (m *MockGecko) SetRateLimitedThen(path string, times int, then http.HandlerFunc) {
	remaining := times
	var mu sync.Mutex
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		limited := remaining > 0
		if limited {
			remaining--
		}
		mu.Unlock()

		if limited {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		then(w, r)
	})
}

// SetMarketPages serves the listing endpoint from pre-built pages; page
// numbers beyond the slice yield an empty array.
func (m *MockGecko) SetMarketPages(pages ...string) {
	m.SetHandler("/coins/markets", func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		w.Header().Set("Content-Type", "application/json")
		if page > len(pages) {
			w.Write([]byte("[]"))
			return
		}
		w.Write([]byte(pages[page-1]))
	})
}

// MarketRowJSON builds one listing row for SetMarketPages.
func MarketRowJSON(id string, rank float64, volume float64, lastUpdated string) string {
	row := map[string]interface{}{
		"id":              id,
		"market_cap_rank": rank,
		"current_price":   1.5,
		"total_volume":    volume,
		"last_updated":    lastUpdated,
	}
	data, err := json.Marshal(row)
	if err != nil {
		panic(fmt.Sprintf("marshal market row: %v", err))
	}
	return string(data)
}
