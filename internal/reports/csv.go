// Package reports persists rebalance plans in the broker's basket import format.
package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/rs/zerolog"
)

// Record layout of the rebalance import file
const (
	HeaderTag   = "CSVEXPORT"
	RowTag      = "DES"
	SecType     = "STK"
	Destination = "SMART/AMEX"
	blankFields = 5
)

// CSVSink implements domain.ReportSink, writing the plan to a file.
// The file is replaced atomically so a reader never sees a partial plan.
type CSVSink struct {
	path string
	log  zerolog.Logger
}

// NewCSVSink creates a sink writing to path
func NewCSVSink(path string, log zerolog.Logger) *CSVSink {
	return &CSVSink{
		path: path,
		log:  log.With().Str("component", "csv_report").Logger(),
	}
}

// Path returns the output file
func (s *CSVSink) Path() string {
	return s.path
}

// Write implements domain.ReportSink
func (s *CSVSink) Write(target domain.TargetAllocation) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rebalance-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, target); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp report: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}

	s.log.Info().Str("path", s.path).Int("rows", len(target)).Msg("Saved rebalance plan")
	return nil
}

// WriteCSV writes the header record and one record per target weight, in allocation order
func WriteCSV(w io.Writer, target domain.TargetAllocation) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{HeaderTag}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, tw := range target {
		if err := writer.Write(Row(tw)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Row returns the positional fields for one target weight:
// DES, symbol, STK, SMART/AMEX, five blanks, percentage.
func Row(tw domain.TargetWeight) []string {
	row := make([]string, 0, 5+blankFields)
	row = append(row, RowTag, tw.Symbol, SecType, Destination)
	for i := 0; i < blankFields; i++ {
		row = append(row, "")
	}
	return append(row, strconv.FormatFloat(tw.Percentage, 'f', -1, 64))
}
