package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cytolab/internal/analysis"
)

// CSVWriter provides CSV export for analysis tables.
type CSVWriter struct {
	outputDir string
	logger    *slog.Logger
}

// NewCSVWriter creates a CSV writer rooted at outputDir.
func NewCSVWriter(outputDir string, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{
		outputDir: outputDir,
		logger:    logger.With(slog.String("component", "csv_exporter")),
	}
}

// WriteTable writes one table to <outputDir>/<name>.csv, creating the
// directory as needed.
func (w *CSVWriter) WriteTable(name string, table analysis.Table) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(w.outputDir, name+".csv")

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(table.Columns); err != nil {
		return "", fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range table.Rows {
		record := make([]string, len(row))
		for j, cell := range row {
			record[j] = formatCell(cell)
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}

	w.logger.Info("Wrote CSV table",
		slog.String("path", path),
		slog.Int("rows", table.Len()))
	return path, nil
}

// formatCell renders one table cell for CSV output; nil (not computable)
// becomes an empty field.
func formatCell(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
