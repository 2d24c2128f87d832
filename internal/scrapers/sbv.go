/**
 * @description
 * Central reference rate scraper.
 * Fetches the daily central exchange rate feed (JSON) and normalizes one
 * record per currency code.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2
 */

package scrapers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type sbvPayload struct {
	Date        string `json:"date"`
	PublishedAt string `json:"published_at"`
	Rates       []struct {
		Currency string  `json:"currency"`
		Name     string  `json:"name"`
		Rate     float64 `json:"rate"`
	} `json:"rates"`
}

type SBVScraper struct {
	client *resty.Client
	apiURL string
}

func NewSBVScraper(apiURL string) *SBVScraper {
	client := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(2)
	return &SBVScraper{client: client, apiURL: apiURL}
}

// FetchCentralRates retrieves today's central reference rates.
func (s *SBVScraper) FetchCentralRates() ([]CentralRateRecord, error) {
	if s.apiURL == "" {
		return nil, fmt.Errorf("sbv: api url not configured")
	}

	resp, err := s.client.R().Get(s.apiURL)
	if err != nil {
		return nil, fmt.Errorf("sbv: fetch: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("sbv: fetch: unexpected status %d", resp.StatusCode())
	}

	return ParseSBV(resp.Body())
}

// ParseSBV normalizes the central rate feed payload.
func ParseSBV(body []byte) ([]CentralRateRecord, error) {
	var payload sbvPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("sbv: parse: %w", err)
	}

	day, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		return nil, fmt.Errorf("sbv: parse date %q: %w", payload.Date, err)
	}

	var publishedAt *time.Time
	if payload.PublishedAt != "" {
		if ts, err := time.Parse(time.RFC3339, payload.PublishedAt); err == nil {
			publishedAt = &ts
		}
	}

	records := make([]CentralRateRecord, 0, len(payload.Rates))
	for _, r := range payload.Rates {
		code := strings.ToUpper(strings.TrimSpace(r.Currency))
		if code == "" || r.Rate == 0 {
			continue
		}
		records = append(records, CentralRateRecord{
			CurrencyCode: code,
			CurrencyName: r.Name,
			Rate:         r.Rate,
			Date:         day,
			PublishedAt:  publishedAt,
		})
	}
	return records, nil
}
