package coingecko

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tinpulse/marketsync/internal/testutil"
	"github.com/tinpulse/marketsync/pkg/client"
)

func newTestTransport(t *testing.T, mock *testutil.MockGecko) *client.Client {
	t.Helper()

	c, err := client.New(client.Config{
		BaseURL:   mock.URL(),
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("client.New() failed: %v", err)
	}
	return c
}

func testListerConfig() ListerConfig {
	return ListerConfig{
		PageSize:       2,
		MaxPageRetries: 2,
		BackoffBase:    time.Millisecond,
	}
}

func TestLister_FetchAll(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetMarketPages(
		"["+testutil.MarketRowJSON("bitcoin", 1, 1e9, "2026-08-31T09:00:00Z")+","+
			testutil.MarketRowJSON("ethereum", 2, 5e8, "2026-08-31T09:00:00Z")+"]",
		"["+testutil.MarketRowJSON("tether", 3, 8e8, "2026-08-31T09:00:00Z")+"]",
	)

	lister := NewLister(newTestTransport(t, mock), testListerConfig())
	rows, err := lister.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].ID != "bitcoin" || rows[2].ID != "tether" {
		t.Errorf("rows out of order: %q ... %q", rows[0].ID, rows[2].ID)
	}
	if rows[0].Rank == nil || *rows[0].Rank != 1 {
		t.Error("rank not decoded")
	}
	// The short second page ends pagination; no third request.
	if got := mock.RequestsFor("/coins/markets"); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestLister_EmptyFirstPage(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetMarketPages()

	lister := NewLister(newTestTransport(t, mock), testListerConfig())
	rows, err := lister.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
	if got := mock.RequestsFor("/coins/markets"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestLister_RateLimitedPageRetried(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	page := "[" + testutil.MarketRowJSON("bitcoin", 1, 1e9, "2026-08-31T09:00:00Z") + "]"
	mock.SetRateLimitedThen("/coins/markets", 2, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	})

	lister := NewLister(newTestTransport(t, mock), testListerConfig())
	rows, err := lister.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}
	if got := mock.RequestsFor("/coins/markets"); got != 3 {
		t.Errorf("requests = %d, want 3 (two 429s then success)", got)
	}
}

func TestLister_RetriesExhaustedAbortsListing(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetResponse("/coins/markets", testutil.MockResponse{
		StatusCode: http.StatusTooManyRequests,
	})

	lister := NewLister(newTestTransport(t, mock), testListerConfig())
	_, err := lister.FetchAll(context.Background())
	if !errors.Is(err, client.ErrRetriesExhausted) {
		t.Fatalf("FetchAll() error = %v, want ErrRetriesExhausted", err)
	}
	// MaxPageRetries additional attempts after the first.
	if got := mock.RequestsFor("/coins/markets"); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestLister_HardErrorAbortsListing(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetResponse("/coins/markets", testutil.MockResponse{
		StatusCode: http.StatusInternalServerError,
	})

	lister := NewLister(newTestTransport(t, mock), testListerConfig())
	_, err := lister.FetchAll(context.Background())
	if err == nil {
		t.Fatal("FetchAll() error = nil, want hard error to abort the listing")
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("error = %v, want *APIError in chain", err)
	}
	if got := mock.RequestsFor("/coins/markets"); got != 1 {
		t.Errorf("requests = %d, want 1 (hard errors are not retried)", got)
	}
}

func TestLister_MalformedPayloadAborts(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetResponse("/coins/markets", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"unexpected":"object"}`,
	})

	lister := NewLister(newTestTransport(t, mock), testListerConfig())
	_, err := lister.FetchAll(context.Background())
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("FetchAll() error = %v, want ErrMalformedPayload", err)
	}
}

func TestLister_NestedChangeFieldsDecode(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	mock.SetMarketPages(`[{
		"id": "bitcoin",
		"market_cap_rank": 1,
		"price_change_percentage_7d_in_currency": {"usd": 2.5},
		"price_change_percentage_1y_in_currency": {"usd": 120.7}
	}]`)

	lister := NewLister(newTestTransport(t, mock), testListerConfig())
	rows, err := lister.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() failed on nested change fields: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if v := rows[0].Change7d.Value(); v == nil || *v != 2.5 {
		t.Errorf("Change7d = %v, want 2.5", v)
	}
}

func TestLister_PageQuery(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	var gotPerPage, gotOrder string
	mock.SetHandler("/coins/markets", func(w http.ResponseWriter, r *http.Request) {
		gotPerPage = r.URL.Query().Get("per_page")
		gotOrder = r.URL.Query().Get("order")
		w.Write([]byte("[]"))
	})

	lister := NewLister(newTestTransport(t, mock), testListerConfig())
	if _, err := lister.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if gotPerPage != "2" {
		t.Errorf("per_page = %q, want 2", gotPerPage)
	}
	if gotOrder != "market_cap_desc" {
		t.Errorf("order = %q, want market_cap_desc", gotOrder)
	}
}
