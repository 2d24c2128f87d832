/**
 * @description
 * Service layer for the exchange domain: central reference rates, market
 * exchange rates and financial index values. Handles the three query shapes
 * (latest+delta, daily table, resampled chart) and the bulk import pipeline.
 *
 * The three sub-domains share the generic timeseries core but keep their own
 * grouping keys and granularity: central rates are daily rows keyed by
 * currency; market rates group by (currency, source, type); index values group
 * by index.
 *
 * @dependencies
 * - backend/internal/repository
 * - backend/internal/timeseries
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
	"github.com/tygia-project/backend/internal/models"
	"github.com/tygia-project/backend/internal/repository"
	"github.com/tygia-project/backend/internal/scrapers"
	"github.com/tygia-project/backend/internal/timeseries"
)

// Quote types accepted by the exchange endpoints.
const (
	TypeCentral = "central"
	TypeMarket  = "market"
	TypeIndex   = "index"
)

// ErrUnknownType is returned when the type discriminator is not central/market/index.
var ErrUnknownType = errors.New("type must be central, market, or index")

// ErrNoData is returned when an entity exists but has no observations yet.
var ErrNoData = errors.New("no observations")

// ExchangeRepo is the storage surface the exchange service needs. Implemented
// by *repository.ExchangeRepository; faked in tests.
type ExchangeRepo interface {
	CurrencyByCode(code string) (*models.Currency, error)
	Currencies() ([]models.Currency, error)
	GetOrCreateCurrency(code, name string) (*models.Currency, error)
	IndexByCode(code string) (*models.FinancialIndexMeta, error)
	Indexes() ([]models.FinancialIndexMeta, error)
	GetOrCreateIndex(code, name, source string) (*models.FinancialIndexMeta, error)

	LatestCentral(currencyID uint) (*models.CentralExchangeRate, error)
	CentralBefore(currencyID uint, day time.Time) (*models.CentralExchangeRate, error)
	CentralByDate(day time.Time, currencyID uint) ([]models.CentralExchangeRate, error)
	CentralRange(currencyID uint, from, to time.Time) ([]models.CentralExchangeRate, error)
	InsertCentralIfAbsent(rate *models.CentralExchangeRate) (bool, error)
	UpsertCentral(rate *models.CentralExchangeRate) error

	LatestMarket(currencyID uint) (*models.MarketExchangeRate, error)
	MarketBefore(currencyID uint, ts time.Time) (*models.MarketExchangeRate, error)
	MarketByDate(day time.Time, currencyID uint) ([]models.MarketExchangeRate, error)
	MarketRange(currencyID uint, from, to time.Time) ([]models.MarketExchangeRate, error)
	InsertMarketIfAbsent(rate *models.MarketExchangeRate) (bool, error)
	UpsertMarket(rate *models.MarketExchangeRate) error

	LatestIndexValue(indexID uint) (*models.FinancialIndexValue, error)
	IndexValueBefore(indexID uint, ts time.Time) (*models.FinancialIndexValue, error)
	IndexValuesByDate(day time.Time, indexID uint) ([]models.FinancialIndexValue, error)
	IndexValueRange(indexID uint, from, to time.Time) ([]models.FinancialIndexValue, error)
	InsertIndexValueIfAbsent(v *models.FinancialIndexValue) (bool, error)
	UpsertIndexValue(v *models.FinancialIndexValue) error
}

// ExchangeTxRunner executes fn inside one storage transaction.
type ExchangeTxRunner func(fn func(ExchangeRepo) error) error

type ExchangeService struct {
	Repo  ExchangeRepo
	RunTx ExchangeTxRunner
	Redis *redis.Client
	Now   func() time.Time
}

func NewExchangeService(repo ExchangeRepo, runTx ExchangeTxRunner, rdb *redis.Client) *ExchangeService {
	return &ExchangeService{
		Repo:  repo,
		RunTx: runTx,
		Redis: rdb,
		Now:   time.Now,
	}
}

// NewExchangeServiceFromRepository wires the service to a concrete GORM repository.
func NewExchangeServiceFromRepository(repo *repository.ExchangeRepository, rdb *redis.Client) *ExchangeService {
	runTx := func(fn func(ExchangeRepo) error) error {
		return repo.WithTx(func(tx *repository.ExchangeRepository) error {
			return fn(tx)
		})
	}
	return NewExchangeService(repo, runTx, rdb)
}

// ExchangeQuote is the latest-view response row for any exchange sub-domain.
// Central rates fill Date/PublishedAt; market rates and indices fill Timestamp.
type ExchangeQuote struct {
	Code              string     `json:"code"`
	Rate              *float64   `json:"rate,omitempty"`
	Value             *float64   `json:"value,omitempty"`
	Date              string     `json:"date,omitempty"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	DeltaPercent      *float64   `json:"delta_percent"`
	PreviousDate      string     `json:"previous_date,omitempty"`
	PreviousTimestamp *time.Time `json:"previous_timestamp,omitempty"`
}

// ExchangeTableRow is one row of the daily snapshot table.
type ExchangeTableRow struct {
	Code         string     `json:"code"`
	Source       string     `json:"source,omitempty"`
	Type         string     `json:"type,omitempty"`
	Rate         *float64   `json:"rate,omitempty"`
	Value        *float64   `json:"value,omitempty"`
	Date         string     `json:"date,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	Delta        *float64   `json:"delta"`
	DeltaPercent *float64   `json:"delta_percent"`
	PrevRate     *float64   `json:"prev_rate,omitempty"`
	PrevValue    *float64   `json:"prev_value,omitempty"`
}

// ExchangeChartPoint is one resampled day of a chart series.
type ExchangeChartPoint struct {
	Date        string     `json:"date"`
	Rate        *float64   `json:"rate,omitempty"`
	Value       *float64   `json:"value,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Latest resolves the newest observation for (typ, code) and its delta percent
// against the immediately preceding observation.
func (s *ExchangeService) Latest(ctx context.Context, typ, code string) (*ExchangeQuote, error) {
	cacheKey := fmt.Sprintf("exchange:latest:%s:%s", typ, code)
	var cached ExchangeQuote
	if cacheGet(ctx, s.Redis, cacheKey, &cached) {
		return &cached, nil
	}

	quote, err := s.latest(typ, code)
	if err != nil {
		return nil, err
	}
	cacheSet(ctx, s.Redis, cacheKey, quote)
	return quote, nil
}

func (s *ExchangeService) latest(typ, code string) (*ExchangeQuote, error) {
	switch typ {
	case TypeCentral:
		cur, err := s.Repo.CurrencyByCode(code)
		if err != nil {
			return nil, fmt.Errorf("currency %q: %w", code, err)
		}
		latest, err := s.Repo.LatestCentral(cur.ID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, fmt.Errorf("central rate for %s: %w", code, ErrNoData)
		}
		prev, err := s.Repo.CentralBefore(cur.ID, latest.Date)
		if err != nil {
			return nil, err
		}
		quote := &ExchangeQuote{
			Code:        code,
			Rate:        &latest.Rate,
			Date:        latest.Date.Format("2006-01-02"),
			PublishedAt: latest.PublishedAt,
		}
		if prev != nil {
			_, quote.DeltaPercent = timeseries.Delta(latest.Rate, &prev.Rate)
			quote.PreviousDate = prev.Date.Format("2006-01-02")
		}
		return quote, nil

	case TypeMarket:
		cur, err := s.Repo.CurrencyByCode(code)
		if err != nil {
			return nil, fmt.Errorf("currency %q: %w", code, err)
		}
		latest, err := s.Repo.LatestMarket(cur.ID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, fmt.Errorf("market rate for %s: %w", code, ErrNoData)
		}
		prev, err := s.Repo.MarketBefore(cur.ID, latest.Timestamp)
		if err != nil {
			return nil, err
		}
		quote := &ExchangeQuote{
			Code:      code,
			Rate:      &latest.Rate,
			Timestamp: &latest.Timestamp,
		}
		if prev != nil {
			_, quote.DeltaPercent = timeseries.Delta(latest.Rate, &prev.Rate)
			quote.PreviousTimestamp = &prev.Timestamp
		}
		return quote, nil

	case TypeIndex:
		idx, err := s.Repo.IndexByCode(code)
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", code, err)
		}
		latest, err := s.Repo.LatestIndexValue(idx.ID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, fmt.Errorf("index value for %s: %w", code, ErrNoData)
		}
		prev, err := s.Repo.IndexValueBefore(idx.ID, latest.Timestamp)
		if err != nil {
			return nil, err
		}
		quote := &ExchangeQuote{
			Code:      code,
			Value:     &latest.Value,
			Timestamp: &latest.Timestamp,
		}
		if prev != nil {
			_, quote.DeltaPercent = timeseries.Delta(latest.Value, &prev.Value)
			quote.PreviousTimestamp = &prev.Timestamp
		}
		return quote, nil

	default:
		return nil, ErrUnknownType
	}
}

// Table builds the snapshot table for one calendar day. The baseline for each
// row is the prior calendar day's own latest-per-group resolution, not the
// observation immediately preceding — deliberately different from Latest.
func (s *ExchangeService) Table(typ string, day time.Time, code string) ([]ExchangeTableRow, error) {
	switch typ {
	case TypeCentral:
		return s.centralTable(day, code)
	case TypeMarket:
		return s.marketTable(day, code)
	case TypeIndex:
		return s.indexTable(day, code)
	default:
		return nil, ErrUnknownType
	}
}

func (s *ExchangeService) currencyFilter(code string) (uint, error) {
	if code == "" {
		return 0, nil
	}
	cur, err := s.Repo.CurrencyByCode(code)
	if err != nil {
		return 0, fmt.Errorf("currency %q: %w", code, err)
	}
	return cur.ID, nil
}

func (s *ExchangeService) currencyCodes() (map[uint]string, error) {
	currencies, err := s.Repo.Currencies()
	if err != nil {
		return nil, err
	}
	id2code := make(map[uint]string, len(currencies))
	for _, c := range currencies {
		id2code[c.ID] = c.Code
	}
	return id2code, nil
}

func (s *ExchangeService) centralTable(day time.Time, code string) ([]ExchangeTableRow, error) {
	curID, err := s.currencyFilter(code)
	if err != nil {
		return nil, err
	}
	id2code, err := s.currencyCodes()
	if err != nil {
		return nil, err
	}

	current, err := s.Repo.CentralByDate(day, curID)
	if err != nil {
		return nil, err
	}
	previous, err := s.Repo.CentralByDate(day.AddDate(0, 0, -1), curID)
	if err != nil {
		return nil, err
	}
	prevByID := make(map[uint]models.CentralExchangeRate, len(previous))
	for _, r := range previous {
		prevByID[r.CurrencyID] = r
	}

	rows := make([]ExchangeTableRow, 0, len(current))
	for _, r := range current {
		rate := r.Rate
		row := ExchangeTableRow{
			Code:        id2code[r.CurrencyID],
			Rate:        &rate,
			Date:        r.Date.Format("2006-01-02"),
			PublishedAt: r.PublishedAt,
		}
		if prev, ok := prevByID[r.CurrencyID]; ok {
			row.Delta, row.DeltaPercent = timeseries.Delta(r.Rate, &prev.Rate)
			row.PrevRate = &prev.Rate
		}
		rows = append(rows, row)
	}
	sortTableRows(rows)
	return rows, nil
}

type marketKey struct {
	currencyID uint
	source     string
	quoteType  string
}

func (s *ExchangeService) marketTable(day time.Time, code string) ([]ExchangeTableRow, error) {
	curID, err := s.currencyFilter(code)
	if err != nil {
		return nil, err
	}
	id2code, err := s.currencyCodes()
	if err != nil {
		return nil, err
	}

	current, err := s.marketSnapshot(day, curID)
	if err != nil {
		return nil, err
	}
	previous, err := s.marketSnapshot(day.AddDate(0, 0, -1), curID)
	if err != nil {
		return nil, err
	}

	rows := make([]ExchangeTableRow, 0, len(current))
	for key, r := range current {
		rate := r.Rate
		ts := r.Timestamp
		row := ExchangeTableRow{
			Code:      id2code[r.CurrencyID],
			Source:    r.Source,
			Type:      r.Type,
			Rate:      &rate,
			Timestamp: &ts,
		}
		if prev, ok := previous[key]; ok {
			row.Delta, row.DeltaPercent = timeseries.Delta(r.Rate, &prev.Rate)
			prevRate := prev.Rate
			row.PrevRate = &prevRate
		}
		rows = append(rows, row)
	}
	sortTableRows(rows)
	return rows, nil
}

func (s *ExchangeService) marketSnapshot(day time.Time, currencyID uint) (map[marketKey]models.MarketExchangeRate, error) {
	rates, err := s.Repo.MarketByDate(day, currencyID)
	if err != nil {
		return nil, err
	}
	return timeseries.LatestPerGroup(rates,
		func(r models.MarketExchangeRate) marketKey {
			return marketKey{currencyID: r.CurrencyID, source: r.Source, quoteType: r.Type}
		},
		func(r models.MarketExchangeRate) time.Time { return r.Timestamp },
		func(r models.MarketExchangeRate) uint64 { return r.ID },
	), nil
}

func (s *ExchangeService) indexTable(day time.Time, code string) ([]ExchangeTableRow, error) {
	var indexID uint
	if code != "" {
		idx, err := s.Repo.IndexByCode(code)
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", code, err)
		}
		indexID = idx.ID
	}
	indexes, err := s.Repo.Indexes()
	if err != nil {
		return nil, err
	}
	id2code := make(map[uint]string, len(indexes))
	for _, idx := range indexes {
		id2code[idx.ID] = idx.Code
	}

	current, err := s.indexSnapshot(day, indexID)
	if err != nil {
		return nil, err
	}
	previous, err := s.indexSnapshot(day.AddDate(0, 0, -1), indexID)
	if err != nil {
		return nil, err
	}

	rows := make([]ExchangeTableRow, 0, len(current))
	for id, v := range current {
		value := v.Value
		ts := v.Timestamp
		row := ExchangeTableRow{
			Code:      id2code[id],
			Source:    v.Source,
			Value:     &value,
			Timestamp: &ts,
		}
		if prev, ok := previous[id]; ok {
			row.Delta, row.DeltaPercent = timeseries.Delta(v.Value, &prev.Value)
			prevValue := prev.Value
			row.PrevValue = &prevValue
		}
		rows = append(rows, row)
	}
	sortTableRows(rows)
	return rows, nil
}

func (s *ExchangeService) indexSnapshot(day time.Time, indexID uint) (map[uint]models.FinancialIndexValue, error) {
	vals, err := s.Repo.IndexValuesByDate(day, indexID)
	if err != nil {
		return nil, err
	}
	return timeseries.LatestPerGroup(vals,
		func(v models.FinancialIndexValue) uint { return v.IndexID },
		func(v models.FinancialIndexValue) time.Time { return v.Timestamp },
		func(v models.FinancialIndexValue) uint64 { return v.ID },
	), nil
}

func sortTableRows(rows []ExchangeTableRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Code != rows[j].Code {
			return rows[i].Code < rows[j].Code
		}
		if rows[i].Source != rows[j].Source {
			return rows[i].Source < rows[j].Source
		}
		return rows[i].Type < rows[j].Type
	})
}

// Chart builds daily series for the requested codes over the last `days`
// calendar days. Unknown codes are silently omitted from the result map —
// unlike the gold chart, which rejects the whole request.
func (s *ExchangeService) Chart(typ string, codes []string, days int) (map[string][]ExchangeChartPoint, error) {
	from, to := timeseries.ChartWindow(s.Now(), days)
	result := make(map[string][]ExchangeChartPoint, len(codes))

	switch typ {
	case TypeCentral:
		for _, code := range codes {
			cur, err := s.Repo.CurrencyByCode(code)
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			recs, err := s.Repo.CentralRange(cur.ID, from, to)
			if err != nil {
				return nil, err
			}
			points := make([]ExchangeChartPoint, 0, len(recs))
			for _, r := range recs {
				rate := r.Rate
				points = append(points, ExchangeChartPoint{
					Date:        r.Date.Format("2006-01-02"),
					Rate:        &rate,
					PublishedAt: r.PublishedAt,
				})
			}
			result[code] = points
		}

	case TypeMarket:
		for _, code := range codes {
			cur, err := s.Repo.CurrencyByCode(code)
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			recs, err := s.Repo.MarketRange(cur.ID, from, to)
			if err != nil {
				return nil, err
			}
			daily := timeseries.ResampleDaily(recs,
				func(r models.MarketExchangeRate) time.Time { return r.Timestamp },
				func(r models.MarketExchangeRate) uint64 { return r.ID },
			)
			points := make([]ExchangeChartPoint, 0, len(daily))
			for _, r := range daily {
				rate := r.Rate
				points = append(points, ExchangeChartPoint{
					Date: timeseries.DateOf(r.Timestamp).Format("2006-01-02"),
					Rate: &rate,
				})
			}
			result[code] = points
		}

	case TypeIndex:
		for _, code := range codes {
			idx, err := s.Repo.IndexByCode(code)
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			recs, err := s.Repo.IndexValueRange(idx.ID, from, to)
			if err != nil {
				return nil, err
			}
			daily := timeseries.ResampleDaily(recs,
				func(v models.FinancialIndexValue) time.Time { return v.Timestamp },
				func(v models.FinancialIndexValue) uint64 { return v.ID },
			)
			points := make([]ExchangeChartPoint, 0, len(daily))
			for _, v := range daily {
				value := v.Value
				points = append(points, ExchangeChartPoint{
					Date:  timeseries.DateOf(v.Timestamp).Format("2006-01-02"),
					Value: &value,
				})
			}
			result[code] = points
		}

	default:
		return nil, ErrUnknownType
	}

	return result, nil
}

// CentralImportItem is one element of a central-rate import file.
type CentralImportItem struct {
	Currency    string  `json:"currency"`
	Rate        float64 `json:"rate"`
	Date        string  `json:"date"`
	PublishedAt string  `json:"published_at"`
}

// ImportCentralJSON ingests central rates in replace-on-conflict mode, inside
// one transaction. Malformed elements are skipped and counted.
func (s *ExchangeService) ImportCentralJSON(items []CentralImportItem) (imported, skipped int, err error) {
	err = s.RunTx(func(repo ExchangeRepo) error {
		for _, item := range items {
			day, parseErr := time.Parse("2006-01-02", item.Date)
			if item.Currency == "" || item.Rate == 0 || parseErr != nil {
				skipped++
				continue
			}
			cur, curErr := repo.GetOrCreateCurrency(item.Currency, item.Currency)
			if curErr != nil {
				return curErr
			}
			rate := &models.CentralExchangeRate{
				CurrencyID: cur.ID,
				Date:       day,
				Rate:       item.Rate,
			}
			if item.PublishedAt != "" {
				if ts, tsErr := parseTimestamp(item.PublishedAt); tsErr == nil {
					rate.PublishedAt = &ts
				}
			}
			if upErr := repo.UpsertCentral(rate); upErr != nil {
				return upErr
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return imported, skipped, nil
}

// MarketImportItem is one element of a market-rate import file.
type MarketImportItem struct {
	Currency  string  `json:"currency"`
	Rate      float64 `json:"rate"`
	Timestamp string  `json:"timestamp"`
	Source    string  `json:"source"`
	Type      string  `json:"type"`
}

// ImportMarketJSON ingests market rates in replace-on-conflict mode.
func (s *ExchangeService) ImportMarketJSON(items []MarketImportItem) (imported, skipped int, err error) {
	err = s.RunTx(func(repo ExchangeRepo) error {
		for _, item := range items {
			ts, parseErr := parseTimestamp(item.Timestamp)
			if item.Currency == "" || item.Source == "" || item.Rate == 0 || parseErr != nil {
				skipped++
				continue
			}
			cur, curErr := repo.GetOrCreateCurrency(item.Currency, item.Currency)
			if curErr != nil {
				return curErr
			}
			if upErr := repo.UpsertMarket(&models.MarketExchangeRate{
				CurrencyID: cur.ID,
				Timestamp:  ts,
				Source:     item.Source,
				Type:       item.Type,
				Rate:       item.Rate,
			}); upErr != nil {
				return upErr
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return imported, skipped, nil
}

// IndexImportItem is one element of a financial-index import file.
type IndexImportItem struct {
	Index     string  `json:"index"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
	Source    string  `json:"source"`
}

// ImportIndexJSON ingests index values in replace-on-conflict mode.
func (s *ExchangeService) ImportIndexJSON(items []IndexImportItem) (imported, skipped int, err error) {
	err = s.RunTx(func(repo ExchangeRepo) error {
		for _, item := range items {
			ts, parseErr := parseTimestamp(item.Timestamp)
			if item.Index == "" || item.Source == "" || item.Value == 0 || parseErr != nil {
				skipped++
				continue
			}
			idx, idxErr := repo.GetOrCreateIndex(item.Index, item.Index, item.Source)
			if idxErr != nil {
				return idxErr
			}
			if upErr := repo.UpsertIndexValue(&models.FinancialIndexValue{
				IndexID:   idx.ID,
				Timestamp: ts,
				Source:    item.Source,
				Value:     item.Value,
			}); upErr != nil {
				return upErr
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return imported, skipped, nil
}

// IngestCentralRates ingests scraped central rates in skip-on-conflict mode.
// Used by the scheduled job: replaying today's feed is a no-op.
func (s *ExchangeService) IngestCentralRates(records []scrapers.CentralRateRecord) (inserted, skipped int, err error) {
	err = s.RunTx(func(repo ExchangeRepo) error {
		for _, record := range records {
			cur, curErr := repo.GetOrCreateCurrency(record.CurrencyCode, nameOr(record.CurrencyName, record.CurrencyCode))
			if curErr != nil {
				return curErr
			}
			ins, insErr := repo.InsertCentralIfAbsent(&models.CentralExchangeRate{
				CurrencyID:  cur.ID,
				Date:        record.Date,
				Rate:        record.Rate,
				PublishedAt: record.PublishedAt,
			})
			if insErr != nil {
				return insErr
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

var _ ExchangeRepo = (*repository.ExchangeRepository)(nil)
var _ GoldRepo = (*repository.GoldRepository)(nil)
