// Command analyzer runs the three analyses against a loaded store and writes
// the results to disk: one CSV per table, a combined Excel workbook, and the
// responder-comparison box plot as PNG.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"cytolab/internal/analysis"
	"cytolab/internal/config"
	"cytolab/internal/exporter"
	"cytolab/internal/infrastructure"
	"cytolab/internal/store"
)

func main() {
	dbPath := flag.String("db", "", "SQLite database file (defaults to data/cytolab.db relative to the working directory)")
	outDir := flag.String("out", "", "output directory for result files (defaults to data/output relative to the working directory)")
	treatment := flag.String("treatment", analysis.DefaultTreatment, "treatment for the responder comparison")
	flag.Parse()

	paths, err := config.GetPaths()
	if err != nil {
		slog.Error("Failed to initialize paths", "error", err)
		os.Exit(1)
	}

	if *dbPath == "" {
		*dbPath = paths.DatabasePath
	}
	if *outDir == "" {
		*outDir = paths.OutputDir
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

	logger.Info("Starting analysis run",
		slog.String("database", *dbPath),
		slog.String("output_dir", *outDir),
		slog.String("treatment", *treatment))

	st, err := store.OpenReadOnly(*dbPath)
	if err != nil {
		if errors.Is(err, store.ErrNotInitialized) {
			logger.Error("Store is not initialized", slog.String("database", *dbPath))
		} else {
			logger.Error("Failed to open store", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
	defer st.Close()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		logger.Error("Failed to create output directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	engine := analysis.New(st, logger)

	// The store is read-only, so the three analyses can run concurrently.
	var (
		overview    *analysis.OverviewResult
		frequencies analysis.Table
		statistical *analysis.StatisticalResult
	)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		var err error
		overview, err = engine.Overview(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		frequencies, err = engine.SampleFrequencies(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		statistical, err = engine.StatisticalAnalysis(ctx, analysis.StatisticalOptions{Treatment: *treatment})
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("Analysis failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Analyses complete",
		slog.Int("subjects", overview.TotalSubjects),
		slog.Int("samples", overview.TotalSamples),
		slog.Int("frequency_rows", frequencies.Len()),
		slog.Int("comparison_rows", statistical.Results.Len()))

	tables := []struct {
		name  string
		table analysis.Table
	}{
		{"subjects_by_project", overview.SubjectsByProject},
		{"subjects_by_condition", overview.SubjectsByCondition},
		{"subjects_by_treatment", overview.SubjectsByTreatment},
		{"subjects_by_response", overview.SubjectsByResponse},
		{"samples_by_type", overview.SamplesByType},
		{"samples_by_subject", overview.SamplesBySubject},
		{"frequencies", frequencies},
		{"statistical_comparison", statistical.Results},
	}

	csvWriter := exporter.NewCSVWriter(*outDir, logger)
	workbook := exporter.NewWorkbookWriter(logger)
	defer workbook.Close()

	for _, t := range tables {
		path, err := csvWriter.WriteTable(t.name, t.table)
		if err != nil {
			logger.Error("Failed to write CSV",
				slog.String("table", t.name),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Wrote CSV", slog.String("path", path), slog.Int("rows", t.table.Len()))

		if err := workbook.AddTable(t.name, t.table); err != nil {
			logger.Error("Failed to add workbook sheet",
				slog.String("table", t.name),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	workbookPath := filepath.Join(*outDir, "analysis.xlsx")
	if err := workbook.Save(workbookPath); err != nil {
		logger.Error("Failed to save workbook", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Wrote workbook", slog.String("path", workbookPath))

	if statistical.Chart != nil {
		chartPath := filepath.Join(*outDir, "statistical_comparison.png")
		if err := os.WriteFile(chartPath, statistical.Chart.Data, 0644); err != nil {
			logger.Error("Failed to write chart", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Wrote chart", slog.String("path", chartPath))
	} else {
		logger.Warn("No chart produced: no comparable groups for treatment",
			slog.String("treatment", *treatment))
	}

	logger.Info("Analysis run complete", slog.String("output_dir", *outDir))
}
