// Command loader ingests a cell-count CSV into the SQLite store.
//
// The load is all-or-nothing: the CSV is parsed and normalized fully in
// memory, then swapped into the store inside a single transaction. A failed
// run leaves any previously loaded dataset untouched.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"cytolab/internal/config"
	"cytolab/internal/infrastructure"
	"cytolab/internal/ingest"
	"cytolab/internal/store"
)

func main() {
	csvPath := flag.String("csv", "", "input CSV file (defaults to data/cell-count.csv relative to the working directory)")
	dbPath := flag.String("db", "", "SQLite database file (defaults to data/cytolab.db relative to the working directory)")
	flag.Parse()

	// Initialize paths first to get default locations
	paths, err := config.GetPaths()
	if err != nil {
		slog.Error("Failed to initialize paths", "error", err)
		os.Exit(1)
	}

	if *csvPath == "" {
		*csvPath = paths.DefaultCSVPath()
	}
	if *dbPath == "" {
		*dbPath = paths.DatabasePath
	}

	if err := paths.EnsureDirectories(); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = &config.Config{
			Logging: config.LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "console",
			},
		}
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	logger = logger.With(slog.String("run_id", uuid.New().String()))

	logger.Info("Starting cell-count ingestion",
		slog.String("csv", *csvPath),
		slog.String("database", *dbPath))

	file, err := os.Open(*csvPath)
	if err != nil {
		logger.Error("Failed to open CSV file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	records, err := ingest.ReadCSV(file)
	file.Close()
	if err != nil {
		logger.Error("Failed to parse CSV file",
			slog.String("csv", *csvPath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("CSV parsed", slog.Int("rows", len(records)))

	dataset, err := ingest.Normalize(records)
	if err != nil {
		logger.Error("Failed to normalize records", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Records normalized",
		slog.Int("subjects", len(dataset.Subjects)),
		slog.Int("samples", len(dataset.Samples)),
		slog.Int("observations", len(dataset.CellCounts)))

	st, err := store.Open(*dbPath)
	if err != nil {
		logger.Error("Failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Replace(context.Background(), dataset); err != nil {
		logger.Error("Failed to load dataset, prior contents preserved",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Ingestion complete",
		slog.String("database", *dbPath),
		slog.Int("subjects", len(dataset.Subjects)),
		slog.Int("samples", len(dataset.Samples)),
		slog.Int("observations", len(dataset.CellCounts)))
}
