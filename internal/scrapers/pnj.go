/**
 * @description
 * PNJ gold price history scraper.
 * Calls the PNJ ecom API for one day and normalizes the nested
 * location -> gold type -> entries payload into flat GoldRecords.
 * Malformed entries are skipped and counted, never fatal.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2
 */

package scrapers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tygia-project/backend/internal/logger"
)

// locationAliases maps PNJ display names to stable location codes.
var locationAliases = map[string]string{
	"TPHCM":             "hcm",
	"Hà Nội":            "hn",
	"Đà Nẵng":           "dn",
	"Miền Tây":          "mt",
	"Tây Nguyên":        "tn",
	"Đông Nam Bộ":       "dnb",
	"Giá vàng nữ trang": "tq",
}

// NormalizeLocation maps a PNJ location display name to its code.
func NormalizeLocation(name string) string {
	name = strings.TrimSpace(name)
	if code, ok := locationAliases[name]; ok {
		return code
	}
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// NormalizeGoldType derives a stable code from a PNJ gold type display name.
func NormalizeGoldType(name string) string {
	code := strings.ToLower(strings.TrimSpace(name))
	for _, pair := range [][2]string{{" ", "_"}, {".", ""}, {"(", ""}, {")", ""}, {"-", "_"}} {
		code = strings.ReplaceAll(code, pair[0], pair[1])
	}
	return code
}

type pnjPayload struct {
	Locations []struct {
		Name     string `json:"name"`
		GoldType []struct {
			Name string `json:"name"`
			Data []struct {
				UpdatedAt string `json:"updated_at"`
				GiaMua    string `json:"gia_mua"`
				GiaBan    string `json:"gia_ban"`
			} `json:"data"`
		} `json:"gold_type"`
	} `json:"locations"`
}

type PNJScraper struct {
	client *resty.Client
	apiURL string
}

func NewPNJScraper(apiURL string) *PNJScraper {
	client := resty.New().
		SetTimeout(20 * time.Second).
		SetRetryCount(2)
	return &PNJScraper{client: client, apiURL: apiURL}
}

// Fetch retrieves and normalizes PNJ quotes for one day (YYYYMMDD).
func (s *PNJScraper) Fetch(date string) ([]GoldRecord, error) {
	if s.apiURL == "" {
		return nil, fmt.Errorf("pnj: api url not configured")
	}

	resp, err := s.client.R().
		SetQueryParam("date", date).
		Get(s.apiURL)
	if err != nil {
		return nil, fmt.Errorf("pnj: fetch %s: %w", date, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("pnj: fetch %s: unexpected status %d", date, resp.StatusCode())
	}

	records, skipped, err := ParsePNJ(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("pnj: parse %s: %w", date, err)
	}
	logger.Info("✅ [PNJ] Parsed %d records for %s (%d skipped)", len(records), date, skipped)
	return records, nil
}

// ParsePNJ normalizes a raw PNJ payload. Entries with unparsable timestamps or
// prices are dropped and counted in skipped.
func ParsePNJ(body []byte) (records []GoldRecord, skipped int, err error) {
	var payload pnjPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, 0, err
	}

	for _, loc := range payload.Locations {
		locName := strings.TrimSpace(loc.Name)
		locCode := NormalizeLocation(locName)
		for _, gt := range loc.GoldType {
			rawName := strings.TrimSpace(gt.Name)
			gtCode := NormalizeGoldType(rawName)
			for _, entry := range gt.Data {
				ts, tErr := time.Parse("02/01/2006 15:04:05", entry.UpdatedAt)
				buy, bErr := parsePrice(entry.GiaMua)
				sell, sErr := parsePrice(entry.GiaBan)
				if tErr != nil || bErr != nil || sErr != nil {
					skipped++
					logger.Error("⚠️ [PNJ] Skipped malformed entry %+v", entry)
					continue
				}
				records = append(records, GoldRecord{
					Timestamp:    ts,
					BuyPrice:     buy,
					SellPrice:    sell,
					GoldTypeCode: gtCode,
					GoldTypeName: rawName,
					UnitCode:     "tael",
					UnitName:     "tael",
					LocationCode: locCode,
					LocationName: locName,
					Source:       "pnj",
				})
			}
		}
	}
	return records, skipped, nil
}

// parsePrice parses PNJ's dot-separated VND amounts ("75.500.000").
func parsePrice(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ".", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty price")
	}
	return strconv.ParseFloat(cleaned, 64)
}
