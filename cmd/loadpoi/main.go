// Command loadpoi batch-loads a point-of-interest CSV export into the
// location catalog. Safe to re-run: rows already present are skipped.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/coordinote/server/internal/config"
	"github.com/coordinote/server/internal/db"
	"github.com/coordinote/server/internal/ingest"
	"github.com/coordinote/server/internal/repo"
)

func main() {
	csvPath := flag.String("csv", "", "path to a semicolon-delimited name;lat;lon CSV file")
	category := flag.String("category", "metro", "catalog category for the loaded rows")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("-csv is required")
	}

	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("Failed to open CSV: %v", err)
	}
	defer f.Close()

	loader := ingest.NewLoader(repo.NewLocationRepo(database), ingest.LisbonBounds)
	stats, err := loader.LoadCSV(ctx, f, *category)
	if err != nil {
		log.Fatalf("Failed to load CSV: %v", err)
	}

	log.Printf("Loaded %s: %d rows read, %d skipped, %d inserted", *csvPath, stats.Rows, stats.Skipped, stats.Inserted)
}
