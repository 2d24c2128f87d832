/**
 * @description
 * XAU/USD spot price scraper.
 * Fetches the investing.com instrument page and extracts the last price.
 * Produces a single record keyed (xau_usd, ounce, global) with buy price 0
 * since the page only quotes one side.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2
 */

package scrapers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// The page renders the spot price inside data-test="instrument-price-last".
var xauPricePattern = regexp.MustCompile(`data-test="instrument-price-last"[^>]*>([\d.,]+)<`)

type XAUUSDScraper struct {
	client *resty.Client
	url    string
	now    func() time.Time
}

func NewXAUUSDScraper(url string) *XAUUSDScraper {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36").
		SetHeader("Accept-Language", "vi-VN,vi;q=0.9")
	return &XAUUSDScraper{client: client, url: url, now: time.Now}
}

// Fetch scrapes the current XAU/USD quote. The date argument is ignored: the
// page only ever shows the spot price.
func (s *XAUUSDScraper) Fetch(_ string) ([]GoldRecord, error) {
	resp, err := s.client.R().Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("xauusd: fetch: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("xauusd: fetch: unexpected status %d", resp.StatusCode())
	}

	price, err := ExtractXAUPrice(resp.String())
	if err != nil {
		return nil, err
	}

	return []GoldRecord{{
		Timestamp:    s.now(),
		BuyPrice:     0,
		SellPrice:    price,
		GoldTypeCode: "xau_usd",
		GoldTypeName: "World gold (XAU/USD)",
		UnitCode:     "ounce",
		UnitName:     "Ounce (1 oz)",
		LocationCode: "global",
		LocationName: "World market",
		Source:       "investing.com",
	}}, nil
}

// ExtractXAUPrice pulls the last-price value out of the instrument page HTML.
func ExtractXAUPrice(html string) (float64, error) {
	m := xauPricePattern.FindStringSubmatch(html)
	if m == nil {
		return 0, fmt.Errorf("xauusd: price element not found in page")
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("xauusd: parse price %q: %w", m[1], err)
	}
	return price, nil
}
