/**
 * @description
 * Normalized record shapes produced by the external-source scrapers, and the
 * contract the ingestion jobs consume them through. One scraper per source;
 * each returns rows already mapped to entity codes so the ingestion pipeline
 * never sees source-specific field names.
 */

package scrapers

import (
	"time"
)

// GoldRecord is one normalized gold quote from an external source.
type GoldRecord struct {
	Timestamp    time.Time
	BuyPrice     float64
	SellPrice    float64
	GoldTypeCode string
	GoldTypeName string
	UnitCode     string
	UnitName     string
	LocationCode string
	LocationName string
	Source       string
}

// CentralRateRecord is one normalized central reference rate for a calendar day.
type CentralRateRecord struct {
	CurrencyCode string
	CurrencyName string
	Rate         float64
	Date         time.Time
	PublishedAt  *time.Time
}

// GoldFetcher fetches gold quotes for one calendar day (YYYYMMDD).
// An empty date means "now" for sources that only expose a spot price.
type GoldFetcher interface {
	Fetch(date string) ([]GoldRecord, error)
}
