package collector

// CSV output for averaged sensor rows

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tturner/farmreg/internal/catalog"
	"github.com/tturner/farmreg/internal/dispatch"
)

// TimestampLayout is the layout of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Row is one averaged collection cycle.
type Row struct {
	Timestamp time.Time
	RunID     string
	Samples   int                 // samples taken in the cycle
	Values    map[string]*float64 // nil when every sample of a signal failed
}

// Writer appends rows to a CSV file. The header is written once, when the
// file is created or empty.
type Writer struct {
	file    *os.File
	csv     *csv.Writer
	signals []*catalog.Signal
}

// NewWriter opens path for appending. Columns are timestamp, run_id and one
// per signal, in the given order.
func NewWriter(path string, signals []*catalog.Signal) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat CSV file: %w", err)
	}

	w := &Writer{
		file:    file,
		csv:     csv.NewWriter(file),
		signals: signals,
	}

	if info.Size() == 0 {
		if err := w.csv.Write(csvHeader(signals)); err != nil {
			file.Close()
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
	}

	return w, nil
}

// WriteRow writes one row and flushes it.
func (w *Writer) WriteRow(row Row) error {
	if err := w.csv.Write(csvRecord(w.signals, row)); err != nil {
		return fmt.Errorf("write CSV record: %w", err)
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

func csvHeader(signals []*catalog.Signal) []string {
	header := make([]string, 0, len(signals)+2)
	header = append(header, "timestamp", "run_id")
	for _, sig := range signals {
		header = append(header, sig.Name)
	}
	return header
}

func csvRecord(signals []*catalog.Signal, row Row) []string {
	record := make([]string, 0, len(signals)+2)
	record = append(record, row.Timestamp.Format(TimestampLayout), row.RunID)
	for _, sig := range signals {
		record = append(record, formatCell(sig, row.Values[sig.Name]))
	}
	return record
}

// formatCell renders an average with one more decimal than the signal's
// scale resolves (empty if no sample succeeded).
func formatCell(sig *catalog.Signal, v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', dispatch.Decimals(sig)+1, 64)
}
