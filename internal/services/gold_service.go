/**
 * @description
 * Service layer for the gold price domain.
 * Resolves latest/baseline observations, builds daily snapshot tables and
 * resampled chart series, and runs the ingestion pipeline for scraped and
 * imported quote batches.
 *
 * @dependencies
 * - backend/internal/repository
 * - backend/internal/timeseries
 * - backend/internal/scrapers
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tygia-project/backend/internal/logger"
	"github.com/tygia-project/backend/internal/models"
	"github.com/tygia-project/backend/internal/repository"
	"github.com/tygia-project/backend/internal/scrapers"
	"github.com/tygia-project/backend/internal/timeseries"
)

// GoldRepo is the storage surface the gold service needs. Implemented by
// *repository.GoldRepository; faked in tests.
type GoldRepo interface {
	GoldTypeByCode(code string) (*models.GoldType, error)
	UnitByCode(code string) (*models.Unit, error)
	LocationByCode(code string) (*models.Location, error)
	GetOrCreateGoldType(code, name, source string) (*models.GoldType, error)
	GetOrCreateUnit(code, name string) (*models.Unit, error)
	GetOrCreateLocation(code, name string) (*models.Location, error)
	Latest(goldTypeID, unitID, locationID uint) (*models.GoldPrice, error)
	LatestBefore(goldTypeID, unitID, locationID uint, ts time.Time) (*models.GoldPrice, error)
	Range(goldTypeID, unitID, locationID uint, from, to time.Time) ([]models.GoldPrice, error)
	ByDate(day time.Time) ([]models.GoldPrice, error)
	InsertIfAbsent(p *models.GoldPrice) (bool, error)
	Upsert(p *models.GoldPrice) error
}

// GoldTxRunner executes fn inside one storage transaction, handing it a
// repository bound to that transaction.
type GoldTxRunner func(fn func(GoldRepo) error) error

type GoldService struct {
	Repo  GoldRepo
	RunTx GoldTxRunner
	Redis *redis.Client
	Now   func() time.Time
}

func NewGoldService(repo GoldRepo, runTx GoldTxRunner, rdb *redis.Client) *GoldService {
	return &GoldService{
		Repo:  repo,
		RunTx: runTx,
		Redis: rdb,
		Now:   time.Now,
	}
}

// NewGoldServiceFromRepository wires the service to a concrete GORM repository.
func NewGoldServiceFromRepository(repo *repository.GoldRepository, rdb *redis.Client) *GoldService {
	runTx := func(fn func(GoldRepo) error) error {
		return repo.WithTx(func(tx *repository.GoldRepository) error {
			return fn(tx)
		})
	}
	return NewGoldService(repo, runTx, rdb)
}

// GoldRow is one gold quote with its delta against the baseline observation.
type GoldRow struct {
	Timestamp         time.Time  `json:"timestamp"`
	BuyPrice          float64    `json:"buy_price"`
	SellPrice         float64    `json:"sell_price"`
	GoldType          string     `json:"gold_type"`
	Unit              string     `json:"unit"`
	Location          string     `json:"location"`
	DeltaBuy          *float64   `json:"delta_buy"`
	DeltaSell         *float64   `json:"delta_sell"`
	DeltaBuyPercent   *float64   `json:"delta_buy_percent"`
	DeltaSellPercent  *float64   `json:"delta_sell_percent"`
	PrevBuyPrice      *float64   `json:"prev_buy_price,omitempty"`
	PrevSellPrice     *float64   `json:"prev_sell_price,omitempty"`
	PreviousTimestamp *time.Time `json:"previous_timestamp,omitempty"`
}

// GoldChartPoint is one resampled day in a chart series.
type GoldChartPoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Current returns the latest quote for (goldType, location, unit) with its delta
// against the observation immediately preceding it. Returns nil when the series
// is empty; repository.ErrNotFound when any code is unknown.
func (s *GoldService) Current(ctx context.Context, goldType, location, unit string) (*GoldRow, error) {
	cacheKey := fmt.Sprintf("gold:current:%s:%s:%s", goldType, location, unit)
	var cached GoldRow
	if cacheGet(ctx, s.Redis, cacheKey, &cached) {
		return &cached, nil
	}

	gt, err := s.Repo.GoldTypeByCode(goldType)
	if err != nil {
		return nil, fmt.Errorf("gold type %q: %w", goldType, err)
	}
	loc, err := s.Repo.LocationByCode(location)
	if err != nil {
		return nil, fmt.Errorf("location %q: %w", location, err)
	}
	un, err := s.Repo.UnitByCode(unit)
	if err != nil {
		return nil, fmt.Errorf("unit %q: %w", unit, err)
	}

	latest, err := s.Repo.Latest(gt.ID, un.ID, loc.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	// Baseline: the observation immediately preceding the latest one, which may
	// be minutes or weeks older depending on data density.
	prev, err := s.Repo.LatestBefore(gt.ID, un.ID, loc.ID, latest.Timestamp)
	if err != nil {
		return nil, err
	}

	row := buildGoldRow(latest, prev, gt.Code, un.Code, loc.Code)
	if prev != nil {
		row.PreviousTimestamp = &prev.Timestamp
	}
	cacheSet(ctx, s.Redis, cacheKey, row)
	return &row, nil
}

// Table builds the snapshot table for one calendar day: the latest quote per
// (gold type, unit, location) group, with deltas against the prior day's
// matching group. Rows are sorted by gold type, unit and location code.
func (s *GoldService) Table(day time.Time) ([]GoldRow, error) {
	current, err := s.latestPerKey(day)
	if err != nil {
		return nil, err
	}
	previous, err := s.latestPerKey(day.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}

	rows := make([]GoldRow, 0, len(current))
	for key, cur := range current {
		prev := previous[key] // nil when the group has no prior-day baseline
		rows = append(rows, buildGoldRow(cur, prev, cur.GoldType.Code, cur.Unit.Code, cur.Location.Code))
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].GoldType != rows[j].GoldType {
			return rows[i].GoldType < rows[j].GoldType
		}
		if rows[i].Unit != rows[j].Unit {
			return rows[i].Unit < rows[j].Unit
		}
		return rows[i].Location < rows[j].Location
	})
	return rows, nil
}

type goldKey struct {
	goldTypeID uint
	unitID     uint
	locationID uint
}

func (s *GoldService) latestPerKey(day time.Time) (map[goldKey]*models.GoldPrice, error) {
	prices, err := s.Repo.ByDate(day)
	if err != nil {
		return nil, err
	}
	grouped := timeseries.LatestPerGroup(prices,
		func(p models.GoldPrice) goldKey {
			return goldKey{goldTypeID: p.GoldTypeID, unitID: p.UnitID, locationID: p.LocationID}
		},
		func(p models.GoldPrice) time.Time { return p.Timestamp },
		func(p models.GoldPrice) uint64 { return p.ID },
	)
	out := make(map[goldKey]*models.GoldPrice, len(grouped))
	for k, v := range grouped {
		p := v
		out[k] = &p
	}
	return out, nil
}

// Chart builds resampled daily series (sell price) for every requested
// (gold type, location) pair, default unit tael. Unlike the exchange chart,
// every requested code must exist: any unknown gold type or location fails the
// whole request.
func (s *GoldService) Chart(goldTypes, locations []string, days int) (map[string][]GoldChartPoint, error) {
	un, err := s.Repo.UnitByCode("tael")
	if err != nil {
		return nil, fmt.Errorf("unit %q: %w", "tael", err)
	}

	type pair struct {
		key string
		gt  *models.GoldType
		loc *models.Location
	}
	pairs := make([]pair, 0, len(goldTypes)*len(locations))
	for _, gtCode := range goldTypes {
		gt, err := s.Repo.GoldTypeByCode(gtCode)
		if err != nil {
			return nil, fmt.Errorf("gold type %q: %w", gtCode, err)
		}
		for _, locCode := range locations {
			loc, err := s.Repo.LocationByCode(locCode)
			if err != nil {
				return nil, fmt.Errorf("location %q: %w", locCode, err)
			}
			pairs = append(pairs, pair{key: gtCode + "-" + locCode, gt: gt, loc: loc})
		}
	}

	from, to := timeseries.ChartWindow(s.Now(), days)
	result := make(map[string][]GoldChartPoint, len(pairs))
	for _, p := range pairs {
		series, err := s.Repo.Range(p.gt.ID, un.ID, p.loc.ID, from, to)
		if err != nil {
			return nil, err
		}
		daily := timeseries.ResampleDaily(series,
			func(gp models.GoldPrice) time.Time { return gp.Timestamp },
			func(gp models.GoldPrice) uint64 { return gp.ID },
		)
		points := make([]GoldChartPoint, 0, len(daily))
		for _, gp := range daily {
			points = append(points, GoldChartPoint{
				Date:  timeseries.DateOf(gp.Timestamp).Format("2006-01-02"),
				Price: gp.SellPrice,
			})
		}
		result[p.key] = points
	}
	return result, nil
}

// GoldImportEntity is the nested entity shape of bulk import elements.
type GoldImportEntity struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// GoldImportItem is one element of a bulk gold import file.
type GoldImportItem struct {
	Timestamp string           `json:"timestamp"`
	BuyPrice  float64          `json:"buy_price"`
	SellPrice float64          `json:"sell_price"`
	GoldType  GoldImportEntity `json:"gold_type"`
	Unit      GoldImportEntity `json:"unit"`
	Location  GoldImportEntity `json:"location"`
}

// ImportJSON ingests a bulk import file in skip-on-conflict mode, inside one
// transaction. Malformed elements are skipped and counted; a storage failure
// aborts and rolls back the whole batch.
func (s *GoldService) ImportJSON(items []GoldImportItem) (inserted, skipped int, err error) {
	err = s.RunTx(func(repo GoldRepo) error {
		for _, item := range items {
			record, ok := parseImportItem(item)
			if !ok {
				skipped++
				continue
			}
			ins, ingestErr := ingestGoldRecord(repo, record)
			if ingestErr != nil {
				return ingestErr
			}
			if ins {
				inserted++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, skipped, nil
}

func parseImportItem(item GoldImportItem) (scrapers.GoldRecord, bool) {
	if item.GoldType.Code == "" || item.Unit.Code == "" || item.Location.Code == "" {
		return scrapers.GoldRecord{}, false
	}
	ts, err := parseTimestamp(item.Timestamp)
	if err != nil {
		return scrapers.GoldRecord{}, false
	}
	return scrapers.GoldRecord{
		Timestamp:    ts,
		BuyPrice:     item.BuyPrice,
		SellPrice:    item.SellPrice,
		GoldTypeCode: item.GoldType.Code,
		GoldTypeName: item.GoldType.Name,
		UnitCode:     item.Unit.Code,
		UnitName:     item.Unit.Name,
		LocationCode: item.Location.Code,
		LocationName: item.Location.Name,
		Source:       item.GoldType.Source,
	}, true
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// IngestBatch ingests scraped records in skip-on-conflict mode inside one
// transaction. Used by the scheduled jobs.
func (s *GoldService) IngestBatch(records []scrapers.GoldRecord) (inserted, skipped int, err error) {
	err = s.RunTx(func(repo GoldRepo) error {
		for _, record := range records {
			ins, ingestErr := ingestGoldRecord(repo, record)
			if ingestErr != nil {
				return ingestErr
			}
			if ins {
				inserted++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, skipped, nil
}

// ingestGoldRecord resolves the record's reference entities (creating missing
// ones) and inserts the quote unless its natural key already exists.
func ingestGoldRecord(repo GoldRepo, record scrapers.GoldRecord) (bool, error) {
	gt, err := repo.GetOrCreateGoldType(record.GoldTypeCode, nameOr(record.GoldTypeName, record.GoldTypeCode), record.Source)
	if err != nil {
		return false, err
	}
	un, err := repo.GetOrCreateUnit(record.UnitCode, nameOr(record.UnitName, record.UnitCode))
	if err != nil {
		return false, err
	}
	loc, err := repo.GetOrCreateLocation(record.LocationCode, nameOr(record.LocationName, record.LocationCode))
	if err != nil {
		return false, err
	}
	return repo.InsertIfAbsent(&models.GoldPrice{
		Timestamp:  record.Timestamp,
		BuyPrice:   record.BuyPrice,
		SellPrice:  record.SellPrice,
		GoldTypeID: gt.ID,
		UnitID:     un.ID,
		LocationID: loc.ID,
	})
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// DayReport is the per-day outcome of a range import.
type DayReport struct {
	Date     string `json:"date"`
	Status   string `json:"status"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// RangeResult aggregates a range import: one report entry per day plus totals.
type RangeResult struct {
	Inserted int         `json:"inserted"`
	Skipped  int         `json:"skipped"`
	Report   []DayReport `json:"report"`
}

// ImportRange ingests one scraper day at a time between start and end
// (inclusive). Each day commits independently; a failed day is reported and
// the loop continues.
func (s *GoldService) ImportRange(start, end time.Time, fetcher scrapers.GoldFetcher) RangeResult {
	result := RangeResult{Report: []DayReport{}}
	for day := timeseries.DateOf(start); !day.After(timeseries.DateOf(end)); day = day.AddDate(0, 0, 1) {
		dateStr := day.Format("2006-01-02")

		records, err := fetcher.Fetch(day.Format("20060102"))
		if err == nil {
			var inserted, skipped int
			inserted, skipped, err = s.IngestBatch(records)
			if err == nil {
				result.Inserted += inserted
				result.Skipped += skipped
				result.Report = append(result.Report, DayReport{
					Date: dateStr, Status: "success", Inserted: inserted, Skipped: skipped,
				})
				continue
			}
		}

		logger.Error("❌ [Import] Day %s failed: %v", dateStr, err)
		result.Report = append(result.Report, DayReport{Date: dateStr, Status: "error", Error: err.Error()})
	}
	return result
}

func buildGoldRow(cur, prev *models.GoldPrice, gtCode, unitCode, locCode string) GoldRow {
	row := GoldRow{
		Timestamp: cur.Timestamp,
		BuyPrice:  cur.BuyPrice,
		SellPrice: cur.SellPrice,
		GoldType:  gtCode,
		Unit:      unitCode,
		Location:  locCode,
	}
	if prev != nil {
		row.DeltaBuy, row.DeltaBuyPercent = timeseries.Delta(cur.BuyPrice, &prev.BuyPrice)
		row.DeltaSell, row.DeltaSellPercent = timeseries.Delta(cur.SellPrice, &prev.SellPrice)
		row.PrevBuyPrice = &prev.BuyPrice
		row.PrevSellPrice = &prev.SellPrice
	}
	return row
}

// IsNotFound reports whether err stems from an unknown entity code.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
