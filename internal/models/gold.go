/**
 * @description
 * Gold domain database models.
 * Reference entities (gold type, unit, location) plus the timestamped price observations.
 * The composite unique index on gold_prices is the natural key used for idempotent ingestion.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// GoldType represents a quoted gold product (e.g. sjc, pnj_mieng, xau_usd)
type GoldType struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Code   string `gorm:"column:code;uniqueIndex" json:"code"`
	Name   string `gorm:"column:name" json:"name"`
	Source string `gorm:"column:source" json:"source"`
}

func (GoldType) TableName() string {
	return "gold_types"
}

// Unit represents a weight unit a gold price is quoted in (tael, ounce, ...)
type Unit struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Code string `gorm:"column:code;uniqueIndex" json:"code"`
	Name string `gorm:"column:name" json:"name"`
}

func (Unit) TableName() string {
	return "units"
}

// Location represents the trading location a gold price applies to (hcm, hn, global, ...)
type Location struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Code string `gorm:"column:code;uniqueIndex" json:"code"`
	Name string `gorm:"column:name" json:"name"`
}

func (Location) TableName() string {
	return "locations"
}

// GoldPrice represents one buy/sell quote for a (gold type, unit, location) at a point in time
type GoldPrice struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp  time.Time `gorm:"column:timestamp;uniqueIndex:idx_gold_prices_natural;index:idx_gold_prices_time" json:"timestamp"`
	BuyPrice   float64   `gorm:"column:buy_price;type:decimal(20,4)" json:"buy_price"`
	SellPrice  float64   `gorm:"column:sell_price;type:decimal(20,4)" json:"sell_price"`
	GoldTypeID uint      `gorm:"column:gold_type_id;uniqueIndex:idx_gold_prices_natural" json:"gold_type_id"`
	UnitID     uint      `gorm:"column:unit_id;uniqueIndex:idx_gold_prices_natural" json:"unit_id"`
	LocationID uint      `gorm:"column:location_id;uniqueIndex:idx_gold_prices_natural" json:"location_id"`

	GoldType GoldType `gorm:"foreignKey:GoldTypeID" json:"gold_type"`
	Unit     Unit     `gorm:"foreignKey:UnitID" json:"unit"`
	Location Location `gorm:"foreignKey:LocationID" json:"location"`
}

func (GoldPrice) TableName() string {
	return "gold_prices"
}
