package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"ga4-export/internal/pipeline"
	"ga4-export/internal/store"
)

func main() {
	configPath := flag.String("config", "/data/config.json", "path to the export config JSON")
	dbPath := flag.String("db", "exports.db", "path to the run-tracking database")
	flag.Parse()

	if err := store.InitDB(*dbPath); err != nil {
		fmt.Printf("❌ Cannot open run database: %v\n", err)
		os.Exit(1)
	}

	spec, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("❌ Cannot load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	runID := uuid.New().String()

	if err := store.SaveRun(runID, *spec); err != nil {
		fmt.Printf("❌ Cannot register run: %v\n", err)
		os.Exit(1)
	}

	// Per-property and per-query failures are recorded inside the run;
	// only configuration-time failures reach this error.
	if err := pipeline.Run(context.Background(), runID, *spec); err != nil {
		fmt.Printf("❌ Export run %s failed: %v\n", runID, err)
		os.Exit(1)
	}
}
