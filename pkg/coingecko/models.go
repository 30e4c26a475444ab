// Package coingecko implements the paginated fetchers for the CoinGecko
// v3 API: the full market listing and the per-coin detail endpoints.
package coingecko

import (
	"encoding/json"
	"strings"
)

// MarketRow is one entry of the /coins/markets listing. Numeric fields are
// pointers because the provider omits them for thinly traded coins; an
// absent value must never blank an existing store cell.
type MarketRow struct {
	ID          string    `json:"id"`
	LastUpdated string    `json:"last_updated"`
	Rank        *float64  `json:"market_cap_rank"`
	Price       *float64  `json:"current_price"`
	Change24h   *float64  `json:"price_change_percentage_24h"`
	Change7d    ChangePct `json:"price_change_percentage_7d_in_currency"`
	Change1y    ChangePct `json:"price_change_percentage_1y_in_currency"`
	MarketCap   *float64  `json:"market_cap"`
	Volume      *float64  `json:"total_volume"`
}

// ChangePct is a price-change percentage the listing reports either as a
// bare number or nested per currency, like {"usd": 2.5}. Any other shape
// decodes as absent; one odd field must never abort a listing page.
type ChangePct struct {
	v *float64
}

// Value returns the percentage in USD, if present.
func (p ChangePct) Value() *float64 {
	return p.v
}

// UnmarshalJSON accepts a number, a per-currency object, or null.
func (p *ChangePct) UnmarshalJSON(data []byte) error {
	p.v = nil
	if string(data) == "null" {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		p.v = &n
		return nil
	}

	var byCurrency map[string]*float64
	if err := json.Unmarshal(data, &byCurrency); err == nil {
		p.v = byCurrency["usd"]
	}
	return nil
}

// CoinDetail is the partial decode of /coins/{id}. Only the fields the
// sync consumes are declared; everything else in the payload is ignored.
type CoinDetail struct {
	ID         string            `json:"id"`
	MarketData *marketData       `json:"market_data"`
	Platforms  map[string]string `json:"platforms"`
	Links      *coinLinks        `json:"links"`
}

type marketData struct {
	ATH       map[string]*float64 `json:"ath"`
	ATHDate   map[string]string   `json:"ath_date"`
	Change30d map[string]*float64 `json:"price_change_percentage_30d_in_currency"`
}

type coinLinks struct {
	BlockchainSite            []string `json:"blockchain_site"`
	TelegramChannelIdentifier string   `json:"telegram_channel_identifier"`
	SubredditURL              string   `json:"subreddit_url"`
	ChatURL                   []string `json:"chat_url"`
	TwitterScreenName         string   `json:"twitter_screen_name"`
}

// The accessors below are nil-safe at every level so a sparse payload
// yields absent values instead of panics.

// ATHUSD returns the all-time-high price in USD, if present.
func (d *CoinDetail) ATHUSD() *float64 {
	if d.MarketData == nil {
		return nil
	}
	return d.MarketData.ATH["usd"]
}

// ATHDateUSD returns the all-time-high date in USD truncated to
// YYYY-MM-DD, or "".
func (d *CoinDetail) ATHDateUSD() string {
	if d.MarketData == nil {
		return ""
	}
	date := d.MarketData.ATHDate["usd"]
	if len(date) > 10 {
		date = date[:10]
	}
	return date
}

// Change30dUSD returns the 30-day price change percentage in USD, if
// present.
func (d *CoinDetail) Change30dUSD() *float64 {
	if d.MarketData == nil {
		return nil
	}
	return d.MarketData.Change30d["usd"]
}

// ExplorerURL returns the first non-empty blockchain explorer link.
func (d *CoinDetail) ExplorerURL() string {
	if d.Links == nil {
		return ""
	}
	for _, u := range d.Links.BlockchainSite {
		if u != "" {
			return u
		}
	}
	return ""
}

// ContractAddress returns the ethereum contract address, if any.
func (d *CoinDetail) ContractAddress() string {
	return d.Platforms["ethereum"]
}

// TelegramURL builds the t.me link from the channel identifier, or "".
func (d *CoinDetail) TelegramURL() string {
	if d.Links == nil || d.Links.TelegramChannelIdentifier == "" {
		return ""
	}
	return "https://t.me/" + d.Links.TelegramChannelIdentifier
}

// RedditURL returns the subreddit link, or "".
func (d *CoinDetail) RedditURL() string {
	if d.Links == nil {
		return ""
	}
	return d.Links.SubredditURL
}

// DiscordURL returns the first chat link that points at Discord, or "".
func (d *CoinDetail) DiscordURL() string {
	if d.Links == nil {
		return ""
	}
	for _, u := range d.Links.ChatURL {
		if strings.Contains(strings.ToLower(u), "discord") {
			return u
		}
	}
	return ""
}

// TwitterURL builds the twitter link from the screen name, or "".
func (d *CoinDetail) TwitterURL() string {
	if d.Links == nil || d.Links.TwitterScreenName == "" {
		return ""
	}
	return "https://twitter.com/" + d.Links.TwitterScreenName
}

// TickersPage is one page of /coins/{id}/tickers.
type TickersPage struct {
	Tickers []Ticker `json:"tickers"`
}

// Ticker is one market listing of a coin.
type Ticker struct {
	Market TickerMarket `json:"market"`
}

// TickerMarket identifies the exchange carrying a ticker.
type TickerMarket struct {
	Name string `json:"name"`
}
