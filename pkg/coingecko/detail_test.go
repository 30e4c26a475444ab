package coingecko

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinpulse/marketsync/internal/testutil"
	"github.com/tinpulse/marketsync/pkg/cache"
	"github.com/tinpulse/marketsync/pkg/client"
)

const bitcoinDetailJSON = `{
	"id": "bitcoin",
	"market_data": {
		"ath": {"usd": 69045},
		"ath_date": {"usd": "2021-11-10T14:24:11.849Z"},
		"price_change_percentage_30d_in_currency": {"usd": -4.2}
	},
	"platforms": {"ethereum": "0xabc123", "polygon-pos": "0xdef456"},
	"links": {
		"blockchain_site": ["", "https://blockchair.com/bitcoin"],
		"telegram_channel_identifier": "bitcoin",
		"subreddit_url": "https://www.reddit.com/r/Bitcoin/",
		"chat_url": ["https://example.org", "https://discord.gg/btc"],
		"twitter_screen_name": "bitcoin"
	}
}`

func newKV(t *testing.T, name string) *cache.KV {
	t.Helper()

	kv, err := cache.Open(context.Background(), cache.FileBackend{
		Path: filepath.Join(t.TempDir(), name),
	})
	if err != nil {
		t.Fatalf("cache.Open() failed: %v", err)
	}
	return kv
}

func testMetaConfig() MetaConfig {
	return MetaConfig{Max429Retries: 2, BackoffBase: time.Millisecond}
}

func TestMetaFetcher_Success(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetResponse("/coins/bitcoin", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       bitcoinDetailJSON,
	})

	defers := cache.NewDeferList(newKV(t, "defer.json"), 24*time.Hour)
	f := NewMetaFetcher(newTestTransport(t, mock), defers, testMetaConfig())

	cells, ok := f.Fetch(context.Background(), "bitcoin", time.Now())
	if !ok {
		t.Fatal("Fetch() ok = false, want success")
	}

	want := map[string]string{
		"ath_price":        "69045.000000000000",
		"ath_date":         "2021-11-10",
		"change_30d_pct":   "-4.200000000000",
		"chains":           "ethereum|polygon-pos",
		"explorer_url":     "https://blockchair.com/bitcoin",
		"contract_address": "0xabc123",
		"telegram_url":     "https://t.me/bitcoin",
		"reddit_url":       "https://www.reddit.com/r/Bitcoin/",
		"discord_url":      "https://discord.gg/btc",
		"twitter_url":      "https://twitter.com/bitcoin",
	}
	for col, wantV := range want {
		if cells[col] != wantV {
			t.Errorf("%s = %q, want %q", col, cells[col], wantV)
		}
	}
	if len(cells) != len(MetaColumns) {
		t.Errorf("got %d cells, want all %d meta columns", len(cells), len(MetaColumns))
	}
}

func TestMetaFetcher_SparsePayloadYieldsBlankCells(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetResponse("/coins/obscure-coin", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"id":"obscure-coin"}`,
	})

	defers := cache.NewDeferList(newKV(t, "defer.json"), 24*time.Hour)
	f := NewMetaFetcher(newTestTransport(t, mock), defers, testMetaConfig())

	cells, ok := f.Fetch(context.Background(), "obscure-coin", time.Now())
	if !ok {
		t.Fatal("Fetch() ok = false, want success for sparse payload")
	}
	for _, col := range MetaColumns {
		if cells[col] != "" {
			t.Errorf("%s = %q, want blank for sparse payload", col, cells[col])
		}
	}
}

func TestMetaFetcher_RateLimitedThenSuccess(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetRateLimitedThen("/coins/bitcoin", 2, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bitcoinDetailJSON))
	})

	defers := cache.NewDeferList(newKV(t, "defer.json"), 24*time.Hour)
	f := NewMetaFetcher(newTestTransport(t, mock), defers, testMetaConfig())

	now := time.Now()
	_, ok := f.Fetch(context.Background(), "bitcoin", now)
	if !ok {
		t.Fatal("Fetch() ok = false, want success after retries")
	}
	if got := mock.RequestsFor("/coins/bitcoin"); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	if defers.Deferred("bitcoin", now.Add(time.Minute)) {
		t.Error("id deferred despite eventual success")
	}
}

func TestMetaFetcher_RetriesExhaustedDefers(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetResponse("/coins/bitcoin", testutil.MockResponse{
		StatusCode: http.StatusTooManyRequests,
	})

	defers := cache.NewDeferList(newKV(t, "defer.json"), 24*time.Hour)
	f := NewMetaFetcher(newTestTransport(t, mock), defers, testMetaConfig())

	now := time.Now()
	_, ok := f.Fetch(context.Background(), "bitcoin", now)
	if ok {
		t.Fatal("Fetch() ok = true, want failure")
	}
	// Max429Retries additional attempts after the first request.
	if got := mock.RequestsFor("/coins/bitcoin"); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	if !defers.Deferred("bitcoin", now.Add(time.Minute)) {
		t.Error("exhausted id must be deferred")
	}
}

func TestMetaFetcher_TransportErrorDefers(t *testing.T) {
	mock := testutil.NewMockGecko()
	transport := newTestTransport(t, mock)
	mock.Close()

	defers := cache.NewDeferList(newKV(t, "defer.json"), 24*time.Hour)
	f := NewMetaFetcher(transport, defers, testMetaConfig())

	now := time.Now()
	if _, ok := f.Fetch(context.Background(), "bitcoin", now); ok {
		t.Fatal("Fetch() ok = true, want failure")
	}
	if !defers.Deferred("bitcoin", now.Add(time.Minute)) {
		t.Error("transport failure must defer the id")
	}
}

func TestMetaFetcher_HardErrorSkipsWithoutDefer(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetResponse("/coins/bitcoin", testutil.MockResponse{
		StatusCode: http.StatusNotFound,
	})

	defers := cache.NewDeferList(newKV(t, "defer.json"), 24*time.Hour)
	f := NewMetaFetcher(newTestTransport(t, mock), defers, testMetaConfig())

	now := time.Now()
	if _, ok := f.Fetch(context.Background(), "bitcoin", now); ok {
		t.Fatal("Fetch() ok = true, want failure")
	}
	if defers.Deferred("bitcoin", now.Add(time.Minute)) {
		t.Error("hard error must leave the id eligible for the next run")
	}
}

func TestMetaFetcher_MalformedPayloadSkipsWithoutDefer(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetResponse("/coins/bitcoin", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `[1,2,3]`,
	})

	defers := cache.NewDeferList(newKV(t, "defer.json"), 24*time.Hour)
	f := NewMetaFetcher(newTestTransport(t, mock), defers, testMetaConfig())

	now := time.Now()
	if _, ok := f.Fetch(context.Background(), "bitcoin", now); ok {
		t.Fatal("Fetch() ok = true, want failure for malformed payload")
	}
	if defers.Deferred("bitcoin", now.Add(time.Minute)) {
		t.Error("malformed payload must not defer the id")
	}
}

func TestMetaFetcher_CancellationDoesNotDefer(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetResponse("/coins/bitcoin", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       bitcoinDetailJSON,
	})

	// A long pacing interval makes the second request wait; cancelling
	// that wait must not count against the id.
	c, err := client.New(client.Config{
		BaseURL:     mock.URL(),
		UserAgent:   "test-agent",
		MinInterval: time.Minute,
	})
	if err != nil {
		t.Fatalf("client.New() failed: %v", err)
	}
	c.Get(context.Background(), "coins/bitcoin", nil)

	defers := cache.NewDeferList(newKV(t, "defer.json"), 24*time.Hour)
	f := NewMetaFetcher(c, defers, testMetaConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	now := time.Now()
	if _, ok := f.Fetch(ctx, "bitcoin", now); ok {
		t.Fatal("Fetch() ok = true, want failure on cancelled context")
	}
	if defers.Deferred("bitcoin", now.Add(time.Minute)) {
		t.Error("shutdown mid-fetch must not defer the id")
	}
}

func TestMetaFetcher_DeferredIDMakesNoRequests(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	now := time.Now()
	defers := cache.NewDeferList(newKV(t, "defer.json"), 24*time.Hour)
	defers.Defer("bitcoin", now.Add(-time.Hour))

	f := NewMetaFetcher(newTestTransport(t, mock), defers, testMetaConfig())
	if _, ok := f.Fetch(context.Background(), "bitcoin", now); ok {
		t.Fatal("Fetch() ok = true, want deferred skip")
	}
	if got := mock.Requests(); got != 0 {
		t.Errorf("requests = %d, want 0 for deferred id", got)
	}
}
