package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"car-dashboard/models"
)

const (
	listingsSheet = "Listings"
	summarySheet  = "Cleaning Summary"
)

// XLSXWriter exports the cleaned table and its row counters as a workbook.
type XLSXWriter struct {
	path string
	file *excelize.File
}

// NewXLSXWriter prepares a workbook that is saved to path on Write.
func NewXLSXWriter(path string) (*XLSXWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("xlsx: create output dir: %w", err)
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", listingsSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx: add sheet: %w", err)
	}
	return &XLSXWriter{path: path, file: f}, nil
}

// Write fills both sheets and saves the workbook.
func (x *XLSXWriter) Write(_ context.Context, res *models.CleanResult) error {
	for i, h := range models.ListingColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := x.file.SetCellValue(listingsSheet, cell, h); err != nil {
			return fmt.Errorf("xlsx: header: %w", err)
		}
	}
	for r, l := range res.Listings {
		row := []any{l.Car, l.Price, l.Body, l.Mileage, l.EngV, l.EngType, l.Registration, l.Year, l.Model, l.Drive}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := x.file.SetSheetRow(listingsSheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx: row %d: %w", r+2, err)
		}
	}

	summary := [][]any{
		{"Initial Rows", res.InitialRows},
		{"Final Rows", res.CleanedRows},
		{"Removed Rows", res.RemovedRows()},
		{"Kept %", fmt.Sprintf("%.1f%%", res.RetainedPercent())},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := x.file.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx: summary: %w", err)
		}
	}
	_ = x.file.SetColWidth(summarySheet, "A", "A", 18)

	if err := x.file.SaveAs(x.path); err != nil {
		return fmt.Errorf("xlsx: save %q: %w", x.path, err)
	}
	return nil
}

// Close releases the workbook.
func (x *XLSXWriter) Close() error {
	return x.file.Close()
}
