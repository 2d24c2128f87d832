/**
 * @description
 * Worker Service Entry Point.
 * Responsible for scheduled background ingestion:
 * 1. PNJ gold prices for the current day.
 * 2. XAU/USD spot price.
 * 3. Central bank exchange rates.
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/scrapers
 * - backend/internal/services
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tygia-project/backend/internal/config"
	"github.com/tygia-project/backend/internal/db"
	"github.com/tygia-project/backend/internal/logger"
	"github.com/tygia-project/backend/internal/repository"
	"github.com/tygia-project/backend/internal/scrapers"
	"github.com/tygia-project/backend/internal/services"
)

func main() {
	logger.Info("🔥 Starting Tygia Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Connect DBs
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		logger.Fatal("Migration failed: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Error("⚠️ Redis unavailable, latest views will not be cached: %v", err)
		redisClient = nil
	}

	// 3. Initialize Services and Scrapers
	goldService := services.NewGoldServiceFromRepository(repository.NewGoldRepository(pgDB), redisClient)
	exchangeService := services.NewExchangeServiceFromRepository(repository.NewExchangeRepository(pgDB), redisClient)

	pnj := scrapers.NewPNJScraper(cfg.Scrapers.PNJAPIURL)
	xau := scrapers.NewXAUUSDScraper(cfg.Scrapers.XAUUSDURL)
	var sbv *scrapers.SBVScraper
	if cfg.Scrapers.SBVAPIURL != "" {
		sbv = scrapers.NewSBVScraper(cfg.Scrapers.SBVAPIURL)
	} else {
		logger.Info("SBV_API_URL not set, central rate scraping disabled")
	}

	runAll := func() {
		runGoldJob(goldService, pnj, "pnj")
		runGoldJob(goldService, xau, "xau_usd")
		if sbv != nil {
			runCentralJob(exchangeService, sbv)
		}
	}

	// 4. Context with Cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Scrape Loop
	go func() {
		ticker := time.NewTicker(cfg.Worker.ScrapeInterval)
		defer ticker.Stop()

		// Initial run on startup
		runAll()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runAll()
			}
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	time.Sleep(1 * time.Second) // Let any in-flight job log its result
	logger.Info("Worker exited.")
}

// runGoldJob fetches today's quotes from one source and ingests them.
// A failing source must not stop the other jobs.
func runGoldJob(gs *services.GoldService, fetcher scrapers.GoldFetcher, source string) {
	runID := uuid.New().String()[:8]
	logger.Info("🔄 [%s] Scraping %s...", runID, source)

	today := time.Now().Format("20060102")
	records, err := fetcher.Fetch(today)
	if err != nil {
		logger.Error("❌ [%s] %s fetch failed: %v", runID, source, err)
		return
	}

	inserted, skipped, err := gs.IngestBatch(records)
	if err != nil {
		logger.Error("❌ [%s] %s ingest failed: %v", runID, source, err)
		return
	}
	logger.Info("✅ [%s] %s: %d inserted, %d already present", runID, source, inserted, skipped)
}

func runCentralJob(es *services.ExchangeService, sbv *scrapers.SBVScraper) {
	runID := uuid.New().String()[:8]
	logger.Info("🔄 [%s] Scraping central rates...", runID)

	records, err := sbv.FetchCentralRates()
	if err != nil {
		logger.Error("❌ [%s] central rate fetch failed: %v", runID, err)
		return
	}

	inserted, skipped, err := es.IngestCentralRates(records)
	if err != nil {
		logger.Error("❌ [%s] central rate ingest failed: %v", runID, err)
		return
	}
	logger.Info("✅ [%s] central rates: %d inserted, %d already present", runID, inserted, skipped)
}
