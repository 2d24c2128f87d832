/**
 * @description
 * Exchange repository: currency / index registry and the observation stores for
 * central rates (daily granularity), market rates and financial index values
 * (timestamp granularity).
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

type ExchangeRepository struct {
	db *gorm.DB
}

func NewExchangeRepository(db *gorm.DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

// WithTx runs fn against a repository bound to one transaction.
func (r *ExchangeRepository) WithTx(fn func(*ExchangeRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewExchangeRepository(tx))
	})
}

// ---------- entity registry ----------

func (r *ExchangeRepository) CurrencyByCode(code string) (*models.Currency, error) {
	var c models.Currency
	return entity(&c, r.db.Where("code = ?", code).First(&c).Error)
}

func (r *ExchangeRepository) Currencies() ([]models.Currency, error) {
	var cs []models.Currency
	err := r.db.Find(&cs).Error
	return cs, err
}

func (r *ExchangeRepository) GetOrCreateCurrency(code, name string) (*models.Currency, error) {
	var c models.Currency
	err := r.db.Where(models.Currency{Code: code}).
		Attrs(models.Currency{Name: name}).
		FirstOrCreate(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ExchangeRepository) IndexByCode(code string) (*models.FinancialIndexMeta, error) {
	var idx models.FinancialIndexMeta
	return entity(&idx, r.db.Where("code = ?", code).First(&idx).Error)
}

func (r *ExchangeRepository) Indexes() ([]models.FinancialIndexMeta, error) {
	var idxs []models.FinancialIndexMeta
	err := r.db.Find(&idxs).Error
	return idxs, err
}

func (r *ExchangeRepository) GetOrCreateIndex(code, name, source string) (*models.FinancialIndexMeta, error) {
	var idx models.FinancialIndexMeta
	err := r.db.Where(models.FinancialIndexMeta{Code: code}).
		Attrs(models.FinancialIndexMeta{Name: name, Source: source}).
		FirstOrCreate(&idx).Error
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

// ---------- central rates (one row per currency per day) ----------

func (r *ExchangeRepository) LatestCentral(currencyID uint) (*models.CentralExchangeRate, error) {
	var rate models.CentralExchangeRate
	err := r.db.
		Where("currency_id = ?", currencyID).
		Order("date DESC, id DESC").
		First(&rate).Error
	return one(&rate, err)
}

// CentralBefore returns the newest central rate dated strictly before day.
// Central rates only move on business days, so this can be several days back.
func (r *ExchangeRepository) CentralBefore(currencyID uint, day time.Time) (*models.CentralExchangeRate, error) {
	var rate models.CentralExchangeRate
	err := r.db.
		Where("currency_id = ? AND date < ?", currencyID, day.Format("2006-01-02")).
		Order("date DESC, id DESC").
		First(&rate).Error
	return one(&rate, err)
}

func (r *ExchangeRepository) CentralByDate(day time.Time, currencyID uint) ([]models.CentralExchangeRate, error) {
	q := r.db.Where("date = ?", day.Format("2006-01-02"))
	if currencyID != 0 {
		q = q.Where("currency_id = ?", currencyID)
	}
	var rates []models.CentralExchangeRate
	err := q.Find(&rates).Error
	return rates, err
}

// CentralRange returns rates dated in [from, to), ascending. The series is already
// daily so no resampling is needed downstream.
func (r *ExchangeRepository) CentralRange(currencyID uint, from, to time.Time) ([]models.CentralExchangeRate, error) {
	var rates []models.CentralExchangeRate
	err := r.db.
		Where("currency_id = ? AND date >= ? AND date < ?", currencyID, from.Format("2006-01-02"), to.Format("2006-01-02")).
		Order("date ASC, id ASC").
		Find(&rates).Error
	return rates, err
}

func (r *ExchangeRepository) InsertCentralIfAbsent(rate *models.CentralExchangeRate) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(rate)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ExchangeRepository) UpsertCentral(rate *models.CentralExchangeRate) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "published_at"}),
	}).Create(rate).Error
}

// ---------- market rates ----------

func (r *ExchangeRepository) LatestMarket(currencyID uint) (*models.MarketExchangeRate, error) {
	var rate models.MarketExchangeRate
	err := r.db.
		Where("currency_id = ?", currencyID).
		Order("timestamp DESC, id DESC").
		First(&rate).Error
	return one(&rate, err)
}

func (r *ExchangeRepository) MarketBefore(currencyID uint, ts time.Time) (*models.MarketExchangeRate, error) {
	var rate models.MarketExchangeRate
	err := r.db.
		Where("currency_id = ? AND timestamp < ?", currencyID, ts).
		Order("timestamp DESC, id DESC").
		First(&rate).Error
	return one(&rate, err)
}

func (r *ExchangeRepository) MarketByDate(day time.Time, currencyID uint) ([]models.MarketExchangeRate, error) {
	q := r.db.Where("DATE(timestamp) = ?", day.Format("2006-01-02"))
	if currencyID != 0 {
		q = q.Where("currency_id = ?", currencyID)
	}
	var rates []models.MarketExchangeRate
	err := q.Find(&rates).Error
	return rates, err
}

func (r *ExchangeRepository) MarketRange(currencyID uint, from, to time.Time) ([]models.MarketExchangeRate, error) {
	var rates []models.MarketExchangeRate
	err := r.db.
		Where("currency_id = ? AND timestamp >= ? AND timestamp < ?", currencyID, from, to).
		Order("timestamp ASC, id ASC").
		Find(&rates).Error
	return rates, err
}

func (r *ExchangeRepository) InsertMarketIfAbsent(rate *models.MarketExchangeRate) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency_id"}, {Name: "timestamp"}, {Name: "source"}, {Name: "type"}},
		DoNothing: true,
	}).Create(rate)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ExchangeRepository) UpsertMarket(rate *models.MarketExchangeRate) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency_id"}, {Name: "timestamp"}, {Name: "source"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate"}),
	}).Create(rate).Error
}

// ---------- financial index values ----------

func (r *ExchangeRepository) LatestIndexValue(indexID uint) (*models.FinancialIndexValue, error) {
	var v models.FinancialIndexValue
	err := r.db.
		Where("index_id = ?", indexID).
		Order("timestamp DESC, id DESC").
		First(&v).Error
	return one(&v, err)
}

func (r *ExchangeRepository) IndexValueBefore(indexID uint, ts time.Time) (*models.FinancialIndexValue, error) {
	var v models.FinancialIndexValue
	err := r.db.
		Where("index_id = ? AND timestamp < ?", indexID, ts).
		Order("timestamp DESC, id DESC").
		First(&v).Error
	return one(&v, err)
}

func (r *ExchangeRepository) IndexValuesByDate(day time.Time, indexID uint) ([]models.FinancialIndexValue, error) {
	q := r.db.Where("DATE(timestamp) = ?", day.Format("2006-01-02"))
	if indexID != 0 {
		q = q.Where("index_id = ?", indexID)
	}
	var vals []models.FinancialIndexValue
	err := q.Find(&vals).Error
	return vals, err
}

func (r *ExchangeRepository) IndexValueRange(indexID uint, from, to time.Time) ([]models.FinancialIndexValue, error) {
	var vals []models.FinancialIndexValue
	err := r.db.
		Where("index_id = ? AND timestamp >= ? AND timestamp < ?", indexID, from, to).
		Order("timestamp ASC, id ASC").
		Find(&vals).Error
	return vals, err
}

func (r *ExchangeRepository) InsertIndexValueIfAbsent(v *models.FinancialIndexValue) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "index_id"}, {Name: "timestamp"}, {Name: "source"}},
		DoNothing: true,
	}).Create(v)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ExchangeRepository) UpsertIndexValue(v *models.FinancialIndexValue) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "index_id"}, {Name: "timestamp"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(v).Error
}
