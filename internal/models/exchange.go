/**
 * @description
 * Exchange-rate domain database models.
 * Currencies, daily central (reference) rates, intraday market rates, and financial
 * index values. Each observation table carries a composite unique index matching its
 * natural key so ingestion can be replayed safely.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// Currency represents an ISO currency
type Currency struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Code    string `gorm:"column:code;type:varchar(3);uniqueIndex" json:"code"`
	Name    string `gorm:"column:name" json:"name"`
	Symbol  string `gorm:"column:symbol" json:"symbol"`
	Country string `gorm:"column:country" json:"country"`
}

func (Currency) TableName() string {
	return "currencies"
}

// CentralExchangeRate represents the central bank reference rate for a currency on one day.
// One row per (currency, date); PublishedAt is the announcement time when the source provides it.
type CentralExchangeRate struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CurrencyID  uint       `gorm:"column:currency_id;uniqueIndex:idx_central_rates_natural" json:"currency_id"`
	Date        time.Time  `gorm:"column:date;type:date;uniqueIndex:idx_central_rates_natural" json:"date"`
	Rate        float64    `gorm:"column:rate;type:decimal(20,6)" json:"rate"`
	PublishedAt *time.Time `gorm:"column:published_at" json:"published_at"`

	Currency Currency `gorm:"foreignKey:CurrencyID" json:"currency"`
}

func (CentralExchangeRate) TableName() string {
	return "central_exchange_rates"
}

// MarketExchangeRate represents one quoted rate for a currency from a commercial source.
// Type discriminates buy/sell/transfer style quotes within a source.
type MarketExchangeRate struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CurrencyID uint      `gorm:"column:currency_id;uniqueIndex:idx_market_rates_natural" json:"currency_id"`
	Timestamp  time.Time `gorm:"column:timestamp;uniqueIndex:idx_market_rates_natural;index:idx_market_rates_time" json:"timestamp"`
	Source     string    `gorm:"column:source;uniqueIndex:idx_market_rates_natural" json:"source"`
	Type       string    `gorm:"column:type;uniqueIndex:idx_market_rates_natural" json:"type"`
	Rate       float64   `gorm:"column:rate;type:decimal(20,6)" json:"rate"`

	Currency Currency `gorm:"foreignKey:CurrencyID" json:"currency"`
}

func (MarketExchangeRate) TableName() string {
	return "market_exchange_rates"
}

// FinancialIndexMeta represents a tracked financial index (e.g. DXY)
type FinancialIndexMeta struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Code   string `gorm:"column:code;uniqueIndex" json:"code"`
	Name   string `gorm:"column:name" json:"name"`
	Source string `gorm:"column:source" json:"source"`
}

func (FinancialIndexMeta) TableName() string {
	return "financial_index_meta"
}

// FinancialIndexValue represents one index reading at a point in time
type FinancialIndexValue struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	IndexID   uint      `gorm:"column:index_id;uniqueIndex:idx_index_values_natural" json:"index_id"`
	Timestamp time.Time `gorm:"column:timestamp;uniqueIndex:idx_index_values_natural;index:idx_index_values_time" json:"timestamp"`
	Source    string    `gorm:"column:source;uniqueIndex:idx_index_values_natural" json:"source"`
	Value     float64   `gorm:"column:value;type:decimal(20,6)" json:"value"`

	Index FinancialIndexMeta `gorm:"foreignKey:IndexID" json:"index"`
}

func (FinancialIndexValue) TableName() string {
	return "financial_index_values"
}
