package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tygia-project/backend/internal/models"
	"github.com/tygia-project/backend/internal/repository"
	"github.com/tygia-project/backend/internal/scrapers"
	"github.com/tygia-project/backend/internal/timeseries"
)

// fakeGoldRepo is an in-memory GoldRepo for service tests.
type fakeGoldRepo struct {
	goldTypes map[string]*models.GoldType
	units     map[string]*models.Unit
	locations map[string]*models.Location
	prices    []models.GoldPrice

	nextEntityID uint
	nextPriceID  uint64
	insertErr    error
}

func newFakeGoldRepo() *fakeGoldRepo {
	return &fakeGoldRepo{
		goldTypes: map[string]*models.GoldType{},
		units:     map[string]*models.Unit{},
		locations: map[string]*models.Location{},
	}
}

func (f *fakeGoldRepo) GoldTypeByCode(code string) (*models.GoldType, error) {
	if gt, ok := f.goldTypes[code]; ok {
		return gt, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeGoldRepo) UnitByCode(code string) (*models.Unit, error) {
	if u, ok := f.units[code]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeGoldRepo) LocationByCode(code string) (*models.Location, error) {
	if l, ok := f.locations[code]; ok {
		return l, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeGoldRepo) GetOrCreateGoldType(code, name, source string) (*models.GoldType, error) {
	if gt, ok := f.goldTypes[code]; ok {
		return gt, nil
	}
	f.nextEntityID++
	gt := &models.GoldType{ID: f.nextEntityID, Code: code, Name: name, Source: source}
	f.goldTypes[code] = gt
	return gt, nil
}

func (f *fakeGoldRepo) GetOrCreateUnit(code, name string) (*models.Unit, error) {
	if u, ok := f.units[code]; ok {
		return u, nil
	}
	f.nextEntityID++
	u := &models.Unit{ID: f.nextEntityID, Code: code, Name: name}
	f.units[code] = u
	return u, nil
}

func (f *fakeGoldRepo) GetOrCreateLocation(code, name string) (*models.Location, error) {
	if l, ok := f.locations[code]; ok {
		return l, nil
	}
	f.nextEntityID++
	l := &models.Location{ID: f.nextEntityID, Code: code, Name: name}
	f.locations[code] = l
	return l, nil
}

func (f *fakeGoldRepo) Latest(goldTypeID, unitID, locationID uint) (*models.GoldPrice, error) {
	return f.latestMatching(goldTypeID, unitID, locationID, func(p models.GoldPrice) bool { return true }), nil
}

func (f *fakeGoldRepo) LatestBefore(goldTypeID, unitID, locationID uint, ts time.Time) (*models.GoldPrice, error) {
	return f.latestMatching(goldTypeID, unitID, locationID, func(p models.GoldPrice) bool {
		return p.Timestamp.Before(ts)
	}), nil
}

func (f *fakeGoldRepo) latestMatching(goldTypeID, unitID, locationID uint, keep func(models.GoldPrice) bool) *models.GoldPrice {
	var best *models.GoldPrice
	for i := range f.prices {
		p := f.prices[i]
		if p.GoldTypeID != goldTypeID || p.UnitID != unitID || p.LocationID != locationID || !keep(p) {
			continue
		}
		if best == nil || p.Timestamp.After(best.Timestamp) ||
			(p.Timestamp.Equal(best.Timestamp) && p.ID > best.ID) {
			cp := p
			best = &cp
		}
	}
	return best
}

func (f *fakeGoldRepo) Range(goldTypeID, unitID, locationID uint, from, to time.Time) ([]models.GoldPrice, error) {
	var out []models.GoldPrice
	for _, p := range f.prices {
		if p.GoldTypeID != goldTypeID || p.UnitID != unitID || p.LocationID != locationID {
			continue
		}
		if p.Timestamp.Before(from) || !p.Timestamp.Before(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *fakeGoldRepo) ByDate(day time.Time) ([]models.GoldPrice, error) {
	want := timeseries.DateOf(day)
	var out []models.GoldPrice
	for _, p := range f.prices {
		if !timeseries.DateOf(p.Timestamp).Equal(want) {
			continue
		}
		p.GoldType = *f.entityGoldType(p.GoldTypeID)
		p.Unit = *f.entityUnit(p.UnitID)
		p.Location = *f.entityLocation(p.LocationID)
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeGoldRepo) entityGoldType(id uint) *models.GoldType {
	for _, gt := range f.goldTypes {
		if gt.ID == id {
			return gt
		}
	}
	return &models.GoldType{}
}

func (f *fakeGoldRepo) entityUnit(id uint) *models.Unit {
	for _, u := range f.units {
		if u.ID == id {
			return u
		}
	}
	return &models.Unit{}
}

func (f *fakeGoldRepo) entityLocation(id uint) *models.Location {
	for _, l := range f.locations {
		if l.ID == id {
			return l
		}
	}
	return &models.Location{}
}

func (f *fakeGoldRepo) InsertIfAbsent(p *models.GoldPrice) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	for _, existing := range f.prices {
		if existing.Timestamp.Equal(p.Timestamp) &&
			existing.GoldTypeID == p.GoldTypeID &&
			existing.UnitID == p.UnitID &&
			existing.LocationID == p.LocationID {
			return false, nil
		}
	}
	f.nextPriceID++
	p.ID = f.nextPriceID
	f.prices = append(f.prices, *p)
	return true, nil
}

func (f *fakeGoldRepo) Upsert(p *models.GoldPrice) error {
	for i, existing := range f.prices {
		if existing.Timestamp.Equal(p.Timestamp) &&
			existing.GoldTypeID == p.GoldTypeID &&
			existing.UnitID == p.UnitID &&
			existing.LocationID == p.LocationID {
			f.prices[i].BuyPrice = p.BuyPrice
			f.prices[i].SellPrice = p.SellPrice
			return nil
		}
	}
	f.nextPriceID++
	p.ID = f.nextPriceID
	f.prices = append(f.prices, *p)
	return nil
}

func newTestGoldService(repo *fakeGoldRepo, rdb *redis.Client) *GoldService {
	runTx := func(fn func(GoldRepo) error) error { return fn(repo) }
	return NewGoldService(repo, runTx, rdb)
}

func (f *fakeGoldRepo) seedPrice(t *testing.T, ts time.Time, buy, sell float64, gtCode, unitCode, locCode string) {
	t.Helper()
	gt, _ := f.GetOrCreateGoldType(gtCode, gtCode, "test")
	un, _ := f.GetOrCreateUnit(unitCode, unitCode)
	loc, _ := f.GetOrCreateLocation(locCode, locCode)
	inserted, err := f.InsertIfAbsent(&models.GoldPrice{
		Timestamp: ts, BuyPrice: buy, SellPrice: sell,
		GoldTypeID: gt.ID, UnitID: un.ID, LocationID: loc.ID,
	})
	if err != nil || !inserted {
		t.Fatalf("seed failed: inserted=%v err=%v", inserted, err)
	}
}

func TestCurrentComputesDeltaAgainstPreviousObservation(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)

	repo.seedPrice(t, time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC), 78, 80, "sjc", "tael", "hcm")
	repo.seedPrice(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), 98, 100, "sjc", "tael", "hcm")

	row, err := svc.Current(context.Background(), "sjc", "hcm", "tael")
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, 100.0, row.SellPrice)
	require.NotNil(t, row.DeltaSell)
	assert.Equal(t, 20.0, *row.DeltaSell)
	require.NotNil(t, row.DeltaSellPercent)
	assert.Equal(t, 25.0, *row.DeltaSellPercent)
	require.NotNil(t, row.PreviousTimestamp)
	assert.Equal(t, time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC), *row.PreviousTimestamp)
}

func TestCurrentSingleObservationHasNilDeltas(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)

	repo.seedPrice(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), 98, 100, "sjc", "tael", "hcm")

	row, err := svc.Current(context.Background(), "sjc", "hcm", "tael")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Nil(t, row.DeltaSell)
	assert.Nil(t, row.DeltaSellPercent)
	assert.Nil(t, row.PreviousTimestamp)
}

func TestCurrentUnknownCode(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)

	_, err := svc.Current(context.Background(), "sjc", "hcm", "tael")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCurrentEmptySeriesReturnsNil(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)

	repo.GetOrCreateGoldType("sjc", "SJC", "test")
	repo.GetOrCreateUnit("tael", "tael")
	repo.GetOrCreateLocation("hcm", "hcm")

	row, err := svc.Current(context.Background(), "sjc", "hcm", "tael")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestCurrentServedFromCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, rdb)

	repo.seedPrice(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), 98, 100, "sjc", "tael", "hcm")

	first, err := svc.Current(context.Background(), "sjc", "hcm", "tael")
	require.NoError(t, err)
	require.NotNil(t, first)

	// A newer observation lands, but the cached view is still served.
	repo.seedPrice(t, time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC), 110, 112, "sjc", "tael", "hcm")

	second, err := svc.Current(context.Background(), "sjc", "hcm", "tael")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 100.0, second.SellPrice)

	// After the TTL passes the fresh observation shows up.
	mr.FastForward(2 * time.Minute)
	third, err := svc.Current(context.Background(), "sjc", "hcm", "tael")
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, 112.0, third.SellPrice)
}

func TestIngestBatchIsIdempotent(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)

	records := []scrapers.GoldRecord{
		{
			Timestamp: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
			BuyPrice:  98, SellPrice: 100,
			GoldTypeCode: "sjc", UnitCode: "tael", LocationCode: "hcm", Source: "pnj",
		},
		{
			Timestamp: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
			BuyPrice:  96, SellPrice: 98,
			GoldTypeCode: "pnj_mieng", UnitCode: "tael", LocationCode: "hcm", Source: "pnj",
		},
	}

	inserted, skipped, err := svc.IngestBatch(records)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, skipped)

	// Re-running the exact batch inserts nothing.
	inserted, skipped, err = svc.IngestBatch(records)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 2, skipped)

	// Reference entities were created on the fly.
	_, err = repo.GoldTypeByCode("pnj_mieng")
	assert.NoError(t, err)
}

func TestImportJSONSkipsMalformedItems(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)

	items := []GoldImportItem{
		{
			Timestamp: "2024-06-10T09:00:00Z",
			BuyPrice:  98, SellPrice: 100,
			GoldType: GoldImportEntity{Code: "sjc", Name: "SJC"},
			Unit:     GoldImportEntity{Code: "tael"},
			Location: GoldImportEntity{Code: "hcm"},
		},
		{
			Timestamp: "not-a-timestamp",
			GoldType:  GoldImportEntity{Code: "sjc"},
			Unit:      GoldImportEntity{Code: "tael"},
			Location:  GoldImportEntity{Code: "hcm"},
		},
		{
			Timestamp: "2024-06-10T10:00:00Z",
			Unit:      GoldImportEntity{Code: "tael"},
			Location:  GoldImportEntity{Code: "hcm"},
			// missing gold type code
		},
	}

	inserted, skipped, err := svc.ImportJSON(items)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 2, skipped)
}

func TestImportJSONStorageFailureAbortsBatch(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)
	repo.insertErr = errors.New("disk on fire")

	items := []GoldImportItem{{
		Timestamp: "2024-06-10T09:00:00Z",
		BuyPrice:  98, SellPrice: 100,
		GoldType: GoldImportEntity{Code: "sjc"},
		Unit:     GoldImportEntity{Code: "tael"},
		Location: GoldImportEntity{Code: "hcm"},
	}}

	inserted, skipped, err := svc.ImportJSON(items)
	require.Error(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 0, skipped)
}

func TestTableUsesLatestObservationPerGroup(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	// Prior-day baseline for sjc/hcm.
	repo.seedPrice(t, day.AddDate(0, 0, -1).Add(15*time.Hour), 78, 80, "sjc", "tael", "hcm")
	// Two same-day observations; the later one must win.
	repo.seedPrice(t, day.Add(9*time.Hour), 88, 90, "sjc", "tael", "hcm")
	repo.seedPrice(t, day.Add(15*time.Hour), 98, 100, "sjc", "tael", "hcm")
	// A group with no prior-day baseline.
	repo.seedPrice(t, day.Add(9*time.Hour), 68, 70, "pnj_mieng", "tael", "hn")

	rows, err := svc.Table(day)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Sorted by gold type code: pnj_mieng before sjc.
	assert.Equal(t, "pnj_mieng", rows[0].GoldType)
	assert.Nil(t, rows[0].DeltaSell)

	assert.Equal(t, "sjc", rows[1].GoldType)
	assert.Equal(t, 100.0, rows[1].SellPrice)
	require.NotNil(t, rows[1].DeltaSell)
	assert.Equal(t, 20.0, *rows[1].DeltaSell)
	require.NotNil(t, rows[1].DeltaSellPercent)
	assert.Equal(t, 25.0, *rows[1].DeltaSellPercent)
}

func TestChartResamplesToOnePointPerDay(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)
	svc.Now = func() time.Time { return time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC) }

	repo.seedPrice(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), 88, 90, "sjc", "tael", "hcm")
	repo.seedPrice(t, time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC), 98, 100, "sjc", "tael", "hcm")
	repo.seedPrice(t, time.Date(2024, 6, 11, 9, 0, 0, 0, time.UTC), 100, 102, "sjc", "tael", "hcm")
	// Outside the window.
	repo.seedPrice(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), 70, 72, "sjc", "tael", "hcm")

	series, err := svc.Chart([]string{"sjc"}, []string{"hcm"}, 2)
	require.NoError(t, err)

	points, ok := series["sjc-hcm"]
	require.True(t, ok)
	require.Len(t, points, 2)
	assert.Equal(t, "2024-06-10", points[0].Date)
	assert.Equal(t, 100.0, points[0].Price)
	assert.Equal(t, "2024-06-11", points[1].Date)
	assert.Equal(t, 102.0, points[1].Price)
}

func TestChartUnknownCodeFailsWholeRequest(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)

	repo.seedPrice(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), 98, 100, "sjc", "tael", "hcm")

	_, err := svc.Chart([]string{"sjc", "doji"}, []string{"hcm"}, 7)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

// failingFetcher fails on one specific date and succeeds everywhere else.
type failingFetcher struct {
	failOn string
}

func (f failingFetcher) Fetch(date string) ([]scrapers.GoldRecord, error) {
	if date == f.failOn {
		return nil, fmt.Errorf("upstream returned 502")
	}
	ts, _ := time.Parse("20060102", date)
	return []scrapers.GoldRecord{{
		Timestamp: ts.Add(9 * time.Hour),
		BuyPrice:  98, SellPrice: 100,
		GoldTypeCode: "sjc", UnitCode: "tael", LocationCode: "hcm", Source: "pnj",
	}}, nil
}

func TestImportRangeContinuesAfterFailedDay(t *testing.T) {
	repo := newFakeGoldRepo()
	svc := newTestGoldService(repo, nil)

	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)

	result := svc.ImportRange(start, end, failingFetcher{failOn: "20240611"})

	require.Len(t, result.Report, 3)
	assert.Equal(t, "success", result.Report[0].Status)
	assert.Equal(t, "error", result.Report[1].Status)
	assert.NotEmpty(t, result.Report[1].Error)
	assert.Equal(t, "success", result.Report[2].Status)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Skipped)
}
