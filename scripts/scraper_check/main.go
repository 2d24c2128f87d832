package main

import (
	"fmt"
	"log"
	"time"

	"github.com/tygia-project/backend/internal/config"
	"github.com/tygia-project/backend/internal/scrapers"
)

// Fetches each configured source once and prints what came back.
// Touches no database; useful for checking connectivity and payload drift.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Println("=== Scraper Check ===")
	fmt.Printf("PNJ API URL: %s\n", cfg.Scrapers.PNJAPIURL)
	fmt.Printf("XAU/USD URL: %s\n", cfg.Scrapers.XAUUSDURL)
	fmt.Printf("SBV API URL: %s\n", statusString(cfg.Scrapers.SBVAPIURL))
	fmt.Println()

	today := time.Now().Format("20060102")

	pnj := scrapers.NewPNJScraper(cfg.Scrapers.PNJAPIURL)
	if records, err := pnj.Fetch(today); err != nil {
		fmt.Printf("❌ PNJ: %v\n", err)
	} else {
		fmt.Printf("✅ PNJ: %d records\n", len(records))
		for i, r := range records {
			if i >= 3 {
				fmt.Printf("   ... and %d more\n", len(records)-3)
				break
			}
			fmt.Printf("   %s %s/%s buy=%.0f sell=%.0f\n",
				r.Timestamp.Format(time.RFC3339), r.GoldTypeCode, r.LocationCode, r.BuyPrice, r.SellPrice)
		}
	}

	xau := scrapers.NewXAUUSDScraper(cfg.Scrapers.XAUUSDURL)
	if records, err := xau.Fetch(""); err != nil {
		fmt.Printf("❌ XAU/USD: %v\n", err)
	} else if len(records) > 0 {
		fmt.Printf("✅ XAU/USD: %.2f at %s\n", records[0].SellPrice, records[0].Timestamp.Format(time.RFC3339))
	}

	if cfg.Scrapers.SBVAPIURL == "" {
		fmt.Println("⏭️ SBV: skipped (SBV_API_URL not set)")
		return
	}
	sbv := scrapers.NewSBVScraper(cfg.Scrapers.SBVAPIURL)
	if records, err := sbv.FetchCentralRates(); err != nil {
		fmt.Printf("❌ SBV: %v\n", err)
	} else {
		fmt.Printf("✅ SBV: %d central rates\n", len(records))
	}
}

func statusString(url string) string {
	if url == "" {
		return "(not set)"
	}
	return url
}
