package main

import (
	"flag"
	"log"
	"time"

	"github.com/tygia-project/backend/internal/config"
	"github.com/tygia-project/backend/internal/db"
	"github.com/tygia-project/backend/internal/repository"
	"github.com/tygia-project/backend/internal/scrapers"
	"github.com/tygia-project/backend/internal/services"
)

func main() {
	startFlag := flag.String("start", "", "first day to backfill (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "last day to backfill (YYYY-MM-DD), defaults to start")
	flag.Parse()

	if *startFlag == "" {
		log.Fatal("usage: backfill -start YYYY-MM-DD [-end YYYY-MM-DD]")
	}
	if *endFlag == "" {
		*endFlag = *startFlag
	}

	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endFlag)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}
	if end.Before(start) {
		log.Fatal("-end must not be before -start")
	}

	log.Printf("🚀 Backfilling gold prices from %s to %s...", *startFlag, *endFlag)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// No cache for a one-shot CLI run.
	service := services.NewGoldServiceFromRepository(repository.NewGoldRepository(pgDB), nil)
	scraper := scrapers.NewPNJScraper(cfg.Scrapers.PNJAPIURL)

	result := service.ImportRange(start, end, scraper)

	failed := 0
	for _, day := range result.Report {
		if day.Error != "" {
			failed++
			log.Printf("⚠️ %s failed: %s", day.Date, day.Error)
		} else {
			log.Printf("✅ %s: %d inserted, %d skipped", day.Date, day.Inserted, day.Skipped)
		}
	}
	log.Printf("✅ Backfill completed: %d inserted, %d skipped, %d day(s) failed.",
		result.Inserted, result.Skipped, failed)
}
