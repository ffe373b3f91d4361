package collector

// Daily CSV files: one @YYYY-MM-DD.csv per day in a directory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tturner/farmreg/internal/catalog"
	"github.com/tturner/farmreg/internal/logging"
)

const (
	// DefaultLockRetries is how often a locked file is tried before the row
	// is given up.
	DefaultLockRetries = 3
	// DefaultLockRetryDelay is the wait between those attempts.
	DefaultLockRetryDelay = 2 * time.Second
)

// DailyFileName returns the file a row stamped t goes to.
func DailyFileName(t time.Time) string {
	return "@" + t.Format("2006-01-02") + ".csv"
}

// DailyWriter appends rows to one CSV file per calendar day of the row
// timestamp. The file is opened and closed for every row so spreadsheet
// programs can read it between rows. When another program holds the file
// (permission denied), the write is retried.
type DailyWriter struct {
	dir        string
	signals    []*catalog.Signal
	retries    int
	retryDelay time.Duration
	logger     *logging.Logger

	openFile func(name string, flag int, perm os.FileMode) (*os.File, error)
}

// NewDailyWriter creates dir if needed.
func NewDailyWriter(dir string, signals []*catalog.Signal, logger *logging.Logger) (*DailyWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &DailyWriter{
		dir:        dir,
		signals:    signals,
		retries:    DefaultLockRetries,
		retryDelay: DefaultLockRetryDelay,
		logger:     logger,
		openFile:   os.OpenFile,
	}, nil
}

// SetRetry overrides the locked-file retry policy.
func (w *DailyWriter) SetRetry(attempts int, delay time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	w.retries = attempts
	w.retryDelay = delay
}

// Dir returns the output directory.
func (w *DailyWriter) Dir() string {
	return w.dir
}

// Path returns the file a row stamped t is written to.
func (w *DailyWriter) Path(t time.Time) string {
	return filepath.Join(w.dir, DailyFileName(t))
}

// WriteRow appends row to its day's file, writing the header first when
// the file is new.
func (w *DailyWriter) WriteRow(row Row) error {
	path := w.Path(row.Timestamp)

	var err error
	for attempt := 1; attempt <= w.retries; attempt++ {
		if attempt > 1 {
			w.logger.Error("%s is locked by another program, retrying in %s (%d/%d)",
				path, w.retryDelay, attempt, w.retries)
			time.Sleep(w.retryDelay)
		}
		err = w.append(path, row)
		if err == nil || !errors.Is(err, fs.ErrPermission) {
			return err
		}
	}
	return fmt.Errorf("%s still locked after %d attempt(s): %w", path, w.retries, err)
}

func (w *DailyWriter) append(path string, row Row) error {
	file, err := w.openFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat CSV file: %w", err)
	}

	cw := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := cw.Write(csvHeader(w.signals)); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
	}
	if err := cw.Write(csvRecord(w.signals, row)); err != nil {
		return fmt.Errorf("write CSV record: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write CSV record: %w", err)
	}
	return file.Close()
}

// Close is a no-op; files are closed after every row.
func (w *DailyWriter) Close() error {
	return nil
}
