package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"cytolab/internal/analysis"
)

// WorkbookWriter collects analysis tables into a single xlsx workbook, one
// sheet per table.
type WorkbookWriter struct {
	file   *excelize.File
	logger *slog.Logger
	sheets int
}

// NewWorkbookWriter creates an empty workbook.
func NewWorkbookWriter(logger *slog.Logger) *WorkbookWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookWriter{
		file:   excelize.NewFile(),
		logger: logger.With(slog.String("component", "workbook_exporter")),
	}
}

// AddTable appends one sheet named after the table. Sheet names are
// truncated to the xlsx 31-character limit.
func (w *WorkbookWriter) AddTable(name string, table analysis.Table) error {
	if len(name) > 31 {
		name = name[:31]
	}
	if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}

	header := make([]any, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col
	}
	if err := w.file.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", name, err)
	}

	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i, err)
		}
		if err := w.file.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d for %s: %w", i, name, err)
		}
	}

	w.sheets++
	return nil
}

// Save writes the workbook to path, dropping the default empty sheet.
func (w *WorkbookWriter) Save(path string) error {
	if w.sheets == 0 {
		return fmt.Errorf("workbook has no sheets")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := w.file.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	if err := w.file.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	w.logger.Info("Wrote workbook",
		slog.String("path", path),
		slog.Int("sheets", w.sheets))
	return nil
}

// Close releases the underlying file resources.
func (w *WorkbookWriter) Close() error {
	return w.file.Close()
}
