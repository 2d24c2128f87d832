package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tygia-project/backend/internal/models"
	"github.com/tygia-project/backend/internal/repository"
	"github.com/tygia-project/backend/internal/scrapers"
	"github.com/tygia-project/backend/internal/services"
	"github.com/tygia-project/backend/internal/timeseries"
)

// memGoldRepo is a minimal in-memory GoldRepo for routing tests.
type memGoldRepo struct {
	goldTypes map[string]*models.GoldType
	units     map[string]*models.Unit
	locations map[string]*models.Location
	prices    []models.GoldPrice

	nextEntityID uint
	nextPriceID  uint64
}

func newMemGoldRepo() *memGoldRepo {
	return &memGoldRepo{
		goldTypes: map[string]*models.GoldType{},
		units:     map[string]*models.Unit{},
		locations: map[string]*models.Location{},
	}
}

func (m *memGoldRepo) GoldTypeByCode(code string) (*models.GoldType, error) {
	if gt, ok := m.goldTypes[code]; ok {
		return gt, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memGoldRepo) UnitByCode(code string) (*models.Unit, error) {
	if u, ok := m.units[code]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memGoldRepo) LocationByCode(code string) (*models.Location, error) {
	if l, ok := m.locations[code]; ok {
		return l, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memGoldRepo) GetOrCreateGoldType(code, name, source string) (*models.GoldType, error) {
	if gt, ok := m.goldTypes[code]; ok {
		return gt, nil
	}
	m.nextEntityID++
	gt := &models.GoldType{ID: m.nextEntityID, Code: code, Name: name, Source: source}
	m.goldTypes[code] = gt
	return gt, nil
}

func (m *memGoldRepo) GetOrCreateUnit(code, name string) (*models.Unit, error) {
	if u, ok := m.units[code]; ok {
		return u, nil
	}
	m.nextEntityID++
	u := &models.Unit{ID: m.nextEntityID, Code: code, Name: name}
	m.units[code] = u
	return u, nil
}

func (m *memGoldRepo) GetOrCreateLocation(code, name string) (*models.Location, error) {
	if l, ok := m.locations[code]; ok {
		return l, nil
	}
	m.nextEntityID++
	l := &models.Location{ID: m.nextEntityID, Code: code, Name: name}
	m.locations[code] = l
	return l, nil
}

func (m *memGoldRepo) Latest(goldTypeID, unitID, locationID uint) (*models.GoldPrice, error) {
	var best *models.GoldPrice
	for i := range m.prices {
		p := m.prices[i]
		if p.GoldTypeID != goldTypeID || p.UnitID != unitID || p.LocationID != locationID {
			continue
		}
		if best == nil || p.Timestamp.After(best.Timestamp) {
			cp := p
			best = &cp
		}
	}
	return best, nil
}

func (m *memGoldRepo) LatestBefore(goldTypeID, unitID, locationID uint, ts time.Time) (*models.GoldPrice, error) {
	var best *models.GoldPrice
	for i := range m.prices {
		p := m.prices[i]
		if p.GoldTypeID != goldTypeID || p.UnitID != unitID || p.LocationID != locationID {
			continue
		}
		if !p.Timestamp.Before(ts) {
			continue
		}
		if best == nil || p.Timestamp.After(best.Timestamp) {
			cp := p
			best = &cp
		}
	}
	return best, nil
}

func (m *memGoldRepo) Range(goldTypeID, unitID, locationID uint, from, to time.Time) ([]models.GoldPrice, error) {
	var out []models.GoldPrice
	for _, p := range m.prices {
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

func (m *memGoldRepo) ByDate(day time.Time) ([]models.GoldPrice, error) {
	want := timeseries.DateOf(day)
	var out []models.GoldPrice
	for _, p := range m.prices {
		if timeseries.DateOf(p.Timestamp).Equal(want) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memGoldRepo) InsertIfAbsent(p *models.GoldPrice) (bool, error) {
	for _, existing := range m.prices {
		if existing.Timestamp.Equal(p.Timestamp) &&
			existing.GoldTypeID == p.GoldTypeID &&
			existing.UnitID == p.UnitID &&
			existing.LocationID == p.LocationID {
			return false, nil
		}
	}
	m.nextPriceID++
	p.ID = m.nextPriceID
	m.prices = append(m.prices, *p)
	return true, nil
}

func (m *memGoldRepo) Upsert(p *models.GoldPrice) error {
	if _, err := m.InsertIfAbsent(p); err != nil {
		return err
	}
	return nil
}

func newGoldTestApp(repo *memGoldRepo, fetcher scrapers.GoldFetcher) *fiber.App {
	runTx := func(fn func(services.GoldRepo) error) error { return fn(repo) }
	service := services.NewGoldService(repo, runTx, nil)

	handler := NewGoldHandler(service, fetcher)
	app := fiber.New()
	app.Get("/api/v1/gold/current", handler.GetCurrent)
	app.Get("/api/v1/gold/table", handler.GetTable)
	app.Get("/api/v1/gold/chart", handler.GetChart)
	app.Post("/api/v1/gold/import", handler.ImportJSON)
	app.Post("/api/v1/gold/import-range", handler.ImportRange)
	return app
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestGetCurrentRequiresGoldTypeAndLocation(t *testing.T) {
	app := newGoldTestApp(newMemGoldRepo(), nil)
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/gold/current?gold_type=sjc")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "error", body["status"])
}

func TestGetCurrentUnknownCodeIs404(t *testing.T) {
	app := newGoldTestApp(newMemGoldRepo(), nil)
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/gold/current?gold_type=sjc&location=hcm")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetCurrentReturnsLatestWithDelta(t *testing.T) {
	repo := newMemGoldRepo()
	gt, _ := repo.GetOrCreateGoldType("sjc", "SJC", "pnj")
	un, _ := repo.GetOrCreateUnit("tael", "tael")
	loc, _ := repo.GetOrCreateLocation("hcm", "hcm")
	repo.InsertIfAbsent(&models.GoldPrice{
		Timestamp: time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC),
		BuyPrice:  78, SellPrice: 80,
		GoldTypeID: gt.ID, UnitID: un.ID, LocationID: loc.ID,
	})
	repo.InsertIfAbsent(&models.GoldPrice{
		Timestamp: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		BuyPrice:  98, SellPrice: 100,
		GoldTypeID: gt.ID, UnitID: un.ID, LocationID: loc.ID,
	})

	app := newGoldTestApp(repo, nil)
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/gold/current?gold_type=sjc&location=hcm")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])

	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	row := data[0].(map[string]any)
	assert.Equal(t, 100.0, row["sell_price"])
	assert.Equal(t, 20.0, row["delta_sell"])
	assert.Equal(t, 25.0, row["delta_sell_percent"])
}

func TestGetChartUnknownCodeFailsRequest(t *testing.T) {
	repo := newMemGoldRepo()
	repo.GetOrCreateUnit("tael", "tael")

	app := newGoldTestApp(repo, nil)
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/gold/chart?gold_types=doji&locations=hcm")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetChartRejectsBadDays(t *testing.T) {
	app := newGoldTestApp(newMemGoldRepo(), nil)
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/gold/chart?days=0")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportJSONRejectsBadBody(t *testing.T) {
	app := newGoldTestApp(newMemGoldRepo(), nil)
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/gold/import", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportJSONReportsInsertedAndSkipped(t *testing.T) {
	repo := newMemGoldRepo()
	app := newGoldTestApp(repo, nil)
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	payload := `[
		{"timestamp":"2024-06-10T09:00:00Z","buy_price":98,"sell_price":100,
		 "gold_type":{"code":"sjc","name":"SJC"},"unit":{"code":"tael"},"location":{"code":"hcm"}},
		{"timestamp":"2024-06-10T09:00:00Z","buy_price":98,"sell_price":100,
		 "gold_type":{"code":"sjc","name":"SJC"},"unit":{"code":"tael"},"location":{"code":"hcm"}}
	]`

	resp, err := http.Post(srv.URL+"/api/v1/gold/import", "application/json", bytes.NewReader([]byte(payload)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, 1.0, body["inserted"])
	assert.Equal(t, 1.0, body["skipped"])
}

func TestImportRangeRejectsInvertedRange(t *testing.T) {
	app := newGoldTestApp(newMemGoldRepo(), nil)
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	payload := `{"start_date":"2024-06-12","end_date":"2024-06-10"}`
	resp, err := http.Post(srv.URL+"/api/v1/gold/import-range", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// staticFetcher returns one fixed record for every requested day.
type staticFetcher struct{}

func (staticFetcher) Fetch(date string) ([]scrapers.GoldRecord, error) {
	ts, err := time.Parse("20060102", date)
	if err != nil {
		return nil, err
	}
	return []scrapers.GoldRecord{{
		Timestamp: ts.Add(9 * time.Hour),
		BuyPrice:  98, SellPrice: 100,
		GoldTypeCode: "sjc", UnitCode: "tael", LocationCode: "hcm", Source: "pnj",
	}}, nil
}

func TestImportRangeReturnsPerDayReport(t *testing.T) {
	app := newGoldTestApp(newMemGoldRepo(), staticFetcher{})
	srv := httptest.NewServer(adaptor.FiberApp(app))
	defer srv.Close()

	payload := `{"start_date":"2024-06-10","end_date":"2024-06-11"}`
	resp, err := http.Post(srv.URL+"/api/v1/gold/import-range", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, 2.0, body["inserted"])

	report, ok := body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, report, 2)
}
