/**
 * @description
 * Gold price repository: entity registry (gold types, units, locations) and the
 * observation store for gold price quotes.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/models
 */

package repository

import (
	"time"

	"github.com/tygia-project/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GoldRepository struct {
	db *gorm.DB
}

func NewGoldRepository(db *gorm.DB) *GoldRepository {
	return &GoldRepository{db: db}
}

// WithTx runs fn against a repository bound to one transaction.
// Used by ingestion so a failed batch rolls back as a unit.
func (r *GoldRepository) WithTx(fn func(*GoldRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewGoldRepository(tx))
	})
}

// ---------- entity registry ----------

func (r *GoldRepository) GoldTypeByCode(code string) (*models.GoldType, error) {
	var gt models.GoldType
	return entity(&gt, r.db.Where("code = ?", code).First(&gt).Error)
}

func (r *GoldRepository) UnitByCode(code string) (*models.Unit, error) {
	var u models.Unit
	return entity(&u, r.db.Where("code = ?", code).First(&u).Error)
}

func (r *GoldRepository) LocationByCode(code string) (*models.Location, error) {
	var l models.Location
	return entity(&l, r.db.Where("code = ?", code).First(&l).Error)
}

// GetOrCreateGoldType resolves a gold type by code, creating it on first reference.
// Safe to call repeatedly with the same code within one ingestion batch.
func (r *GoldRepository) GetOrCreateGoldType(code, name, source string) (*models.GoldType, error) {
	var gt models.GoldType
	err := r.db.Where(models.GoldType{Code: code}).
		Attrs(models.GoldType{Name: name, Source: source}).
		FirstOrCreate(&gt).Error
	if err != nil {
		return nil, err
	}
	return &gt, nil
}

func (r *GoldRepository) GetOrCreateUnit(code, name string) (*models.Unit, error) {
	var u models.Unit
	err := r.db.Where(models.Unit{Code: code}).
		Attrs(models.Unit{Name: name}).
		FirstOrCreate(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GoldRepository) GetOrCreateLocation(code, name string) (*models.Location, error) {
	var l models.Location
	err := r.db.Where(models.Location{Code: code}).
		Attrs(models.Location{Name: name}).
		FirstOrCreate(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ---------- observation store ----------

// Latest returns the newest quote for the key, or nil when none exist.
func (r *GoldRepository) Latest(goldTypeID, unitID, locationID uint) (*models.GoldPrice, error) {
	var p models.GoldPrice
	err := r.db.
		Where("gold_type_id = ? AND unit_id = ? AND location_id = ?", goldTypeID, unitID, locationID).
		Order("timestamp DESC, id DESC").
		First(&p).Error
	return one(&p, err)
}

// LatestBefore returns the newest quote strictly before ts, or nil.
// This is the delta baseline for the latest view: the immediately preceding
// observation, however old it is.
func (r *GoldRepository) LatestBefore(goldTypeID, unitID, locationID uint, ts time.Time) (*models.GoldPrice, error) {
	var p models.GoldPrice
	err := r.db.
		Where("gold_type_id = ? AND unit_id = ? AND location_id = ? AND timestamp < ?", goldTypeID, unitID, locationID, ts).
		Order("timestamp DESC, id DESC").
		First(&p).Error
	return one(&p, err)
}

// Range returns quotes for the key in [from, to), ascending by timestamp.
func (r *GoldRepository) Range(goldTypeID, unitID, locationID uint, from, to time.Time) ([]models.GoldPrice, error) {
	var prices []models.GoldPrice
	err := r.db.
		Where("gold_type_id = ? AND unit_id = ? AND location_id = ? AND timestamp >= ? AND timestamp < ?",
			goldTypeID, unitID, locationID, from, to).
		Order("timestamp ASC, id ASC").
		Find(&prices).Error
	return prices, err
}

// ByDate returns every quote whose timestamp falls on the given calendar date,
// with reference entities preloaded for display.
func (r *GoldRepository) ByDate(day time.Time) ([]models.GoldPrice, error) {
	var prices []models.GoldPrice
	err := r.db.
		Preload("GoldType").Preload("Unit").Preload("Location").
		Where("DATE(timestamp) = ?", day.Format("2006-01-02")).
		Find(&prices).Error
	return prices, err
}

// InsertIfAbsent inserts the quote unless a row with the same natural key
// (timestamp, gold type, unit, location) already exists. Reports whether it inserted.
func (r *GoldRepository) InsertIfAbsent(p *models.GoldPrice) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "timestamp"}, {Name: "gold_type_id"}, {Name: "unit_id"}, {Name: "location_id"},
		},
		DoNothing: true,
	}).Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Upsert inserts the quote or replaces the prices of the existing row with the
// same natural key. Only explicit import endpoints use replace semantics.
func (r *GoldRepository) Upsert(p *models.GoldPrice) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "timestamp"}, {Name: "gold_type_id"}, {Name: "unit_id"}, {Name: "location_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"buy_price", "sell_price"}),
	}).Create(p).Error
}
