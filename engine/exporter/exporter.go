package exporter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/retail-analytics/engine/formulas"
	"github.com/retail-analytics/engine/types"
)

// Supported export formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// TotalLabel heads the totals row of a CSV export
const TotalLabel = "Total"

// ErrUnsupportedFormat is returned for an export format other than csv or json
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ReportExporter writes report results as CSV or JSON
type ReportExporter struct {
	registry *formulas.Registry
}

// NewReportExporter creates an exporter labelling metric columns from registry
func NewReportExporter(registry *formulas.Registry) *ReportExporter {
	return &ReportExporter{registry: registry}
}

// ContentType returns the HTTP content type of an export format
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Export writes result to w in the given format. Columns follow the query's
// dimension and metric order.
func (e *ReportExporter) Export(w io.Writer, format string, query types.ReportQuery, result *types.ReportResult) error {
	switch format {
	case FormatCSV:
		return e.ExportCSV(w, query, result)
	case FormatJSON:
		return e.ExportJSON(w, result)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// ExportFile writes result to outputPath, creating parent directories
func (e *ReportExporter) ExportFile(outputPath, format string, query types.ReportQuery, result *types.ReportResult) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := e.Export(file, format, query, result); err != nil {
		return fmt.Errorf("failed to export %s: %w", format, err)
	}
	return nil
}

// ExportJSON writes the complete result as indented JSON
func (e *ReportExporter) ExportJSON(w io.Writer, result *types.ReportResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(result)
}

// ExportCSV writes one row per group with formatted metric values, followed
// by a totals row.
func (e *ReportExporter) ExportCSV(w io.Writer, query types.ReportQuery, result *types.ReportResult) error {
	writer := csv.NewWriter(w)

	// Write header
	header := make([]string, 0, len(query.Dimensions)+len(query.Metrics))
	for _, d := range query.Dimensions {
		header = append(header, string(d))
	}
	for _, m := range query.Metrics {
		header = append(header, e.label(m))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	// Write data rows
	for _, row := range result.Rows {
		record := make([]string, 0, len(header))
		for _, d := range query.Dimensions {
			record = append(record, row.Dimensions[d])
		}
		for _, m := range query.Metrics {
			record = append(record, formulas.FormatValue(m, row.Values[m]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	if len(query.Dimensions) > 0 {
		totals := make([]string, len(query.Dimensions), len(header))
		totals[0] = TotalLabel
		for _, m := range query.Metrics {
			totals = append(totals, formulas.FormatValue(m, result.Totals[m]))
		}
		if err := writer.Write(totals); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func (e *ReportExporter) label(m types.Metric) string {
	if e.registry != nil {
		if def, ok := e.registry.Definition(m); ok {
			return def.Label
		}
	}
	return string(m)
}
