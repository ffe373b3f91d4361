package collector

import (
	"errors"
	"fmt"

	"github.com/tturner/farmreg/internal/logging"
)

// Sink receives averaged rows. Writer, DailyWriter, SQLiteSink and MQTTSink
// implement it.
type Sink interface {
	WriteRow(row Row) error
	Close() error
}

// MultiSink fans a row out to several sinks. Every sink sees every row;
// the first error is returned after all have been tried.
type MultiSink []Sink

// WriteRow writes row to each sink in order.
func (m MultiSink) WriteRow(row Row) error {
	var first error
	for _, s := range m {
		if err := s.WriteRow(row); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close sinks: %v", errs)
	}
	return nil
}

// Mirrored keeps a backup copy of every row. A row is stored when either
// copy succeeds; a failed copy is logged and only the loss of both is an
// error.
type Mirrored struct {
	Primary Sink
	Backup  Sink
	Logger  *logging.Logger
}

// WriteRow writes row to the primary and then the backup.
func (m *Mirrored) WriteRow(row Row) error {
	perr := m.Primary.WriteRow(row)
	berr := m.Backup.WriteRow(row)
	switch {
	case perr != nil && berr != nil:
		return fmt.Errorf("primary and backup both failed: %w", errors.Join(perr, berr))
	case perr != nil:
		m.Logger.Error("Primary write failed, row kept in backup only: %v", perr)
	case berr != nil:
		m.Logger.Error("Backup write failed, row kept in primary only: %v", berr)
	}
	return nil
}

// Close closes both sinks.
func (m *Mirrored) Close() error {
	return MultiSink{m.Primary, m.Backup}.Close()
}
