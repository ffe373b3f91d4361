// Package collector samples signals periodically and writes averaged rows.
package collector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tturner/farmreg/internal/catalog"
	"github.com/tturner/farmreg/internal/dispatch"
	"github.com/tturner/farmreg/internal/logging"
)

// RainSensor is collected alongside the sensor category by default.
const RainSensor = "rain_sensor_detecting"

// OutputStatusAddress is the word whose bits 15-2 show which relay outputs
// are driven. Bits 1 and 0 are fault flags and are not collected.
const OutputStatusAddress = 65

// DefaultSignals returns the sensor signals, the rain sensor and the relay
// output indicators, in that order.
func DefaultSignals(cat *catalog.Catalog) []string {
	names := cat.ByCategory(catalog.CategorySensors)
	if !slices.Contains(names, RainSensor) {
		if _, ok := cat.Lookup(RainSensor); ok {
			names = append(names, RainSensor)
		}
	}

	var outputs []*catalog.Signal
	for _, sig := range cat.ByAddress(OutputStatusAddress) {
		if sig.Kind == catalog.KindBit && *sig.Bit >= 2 {
			outputs = append(outputs, sig)
		}
	}
	sort.Slice(outputs, func(i, j int) bool { return *outputs[i].Bit > *outputs[j].Bit })
	for _, sig := range outputs {
		names = append(names, sig.Name)
	}
	return names
}

// ErrStop may be returned by a sink to end Run after the row it was given.
// Run then returns nil and flushes nothing.
var ErrStop = errors.New("collector: stop")

// Config controls a Collector.
type Config struct {
	Signals  []string      // empty means DefaultSignals
	Interval time.Duration // time between samples
	Samples  int           // samples averaged into one row
	Align    time.Duration // when set, rows are cut on wall-clock boundaries instead of every Samples
	RunID    string        // empty means a fresh UUID
	Clock    func() time.Time
}

// Stats counts what a Collector has done so far.
type Stats struct {
	Rows        int
	Samples     int
	FailedReads int
}

// Collector drives a Dispatcher on a fixed interval. Every Samples readings
// are averaged into one Row and handed to the sink.
type Collector struct {
	disp     *dispatch.Dispatcher
	signals  []*catalog.Signal
	names    []string
	interval time.Duration
	samples  int
	align    time.Duration
	runID    string
	now      func() time.Time
	logger   *logging.Logger
	stats    Stats
}

// New validates cfg against the dispatcher's catalog.
func New(disp *dispatch.Dispatcher, cfg Config, logger *logging.Logger) (*Collector, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("collector interval must be > 0")
	}
	if cfg.Align < 0 {
		return nil, fmt.Errorf("collector alignment must be >= 0")
	}
	if cfg.Align == 0 && cfg.Samples < 1 {
		return nil, fmt.Errorf("collector samples must be >= 1")
	}

	cat := disp.Catalog()
	names := cfg.Signals
	if len(names) == 0 {
		names = DefaultSignals(cat)
	}
	signals := make([]*catalog.Signal, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		sig, ok := cat.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown signal %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("signal %q listed twice", name)
		}
		seen[name] = true
		signals = append(signals, sig)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Collector{
		disp:     disp,
		signals:  signals,
		names:    names,
		interval: cfg.Interval,
		samples:  cfg.Samples,
		align:    cfg.Align,
		runID:    runID,
		now:      now,
		logger:   logger,
	}, nil
}

// Signals returns the collected signals in column order.
func (c *Collector) Signals() []*catalog.Signal {
	return c.signals
}

// RunID identifies this collector's rows.
func (c *Collector) RunID() string {
	return c.runID
}

// Stats returns the counters so far. It must not be called while Run is
// active.
func (c *Collector) Stats() Stats {
	return c.stats
}

// Run samples until ctx is done, calling sink with each averaged row. A
// partial cycle is flushed on cancellation; a sample interrupted by the
// cancellation is dropped. Run returns nil on cancellation or ErrStop and
// the sink's error otherwise.
func (c *Collector) Run(ctx context.Context, sink func(Row) error) error {
	if c.align > 0 {
		c.logger.Info("Collecting %d signal(s) every %s, one row per %s boundary (run %s)",
			len(c.signals), c.interval, c.align, c.runID)
	} else {
		c.logger.Info("Collecting %d signal(s) every %s, %d sample(s) per row (run %s)",
			len(c.signals), c.interval, c.samples, c.runID)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	buf := newBuffer(c.names)
	for {
		// The sink may have cancelled ctx, and select below picks randomly
		// between a ready tick and ctx.Done.
		if ctx.Err() != nil {
			return sinkResult(c.flush(buf, sink))
		}

		at := c.now()
		results := c.sample(ctx)
		if ctx.Err() != nil {
			return sinkResult(c.flush(buf, sink))
		}

		if c.align > 0 {
			window := at.Truncate(c.align)
			if buf.count > 0 && !window.Equal(buf.window) {
				if err := c.emit(buf, sink); err != nil {
					return sinkResult(err)
				}
				buf = newBuffer(c.names)
			}
			buf.window = window
			buf.add(results)
		} else {
			buf.add(results)
			if buf.count >= c.samples {
				if err := c.emit(buf, sink); err != nil {
					return sinkResult(err)
				}
				buf = newBuffer(c.names)
			}
		}

		select {
		case <-ctx.Done():
			return sinkResult(c.flush(buf, sink))
		case <-ticker.C:
		}
	}
}

func sinkResult(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func (c *Collector) flush(buf *buffer, sink func(Row) error) error {
	if buf.count == 0 {
		return nil
	}
	return c.emit(buf, sink)
}

// Cycle takes one full row of Samples readings (at least one), waiting
// Interval between them. Align does not apply.
func (c *Collector) Cycle(ctx context.Context) (Row, error) {
	buf := newBuffer(c.names)
	for i := 0; i < max(c.samples, 1); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return Row{}, ctx.Err()
			case <-time.After(c.interval):
			}
		}
		buf.add(c.sample(ctx))
	}
	row := buf.row(c.runID, c.now())
	c.stats.Rows++
	return row, nil
}

func (c *Collector) sample(ctx context.Context) dispatch.Results {
	results := c.disp.ReadMany(ctx, c.names)
	c.stats.Samples++

	failed := results.Failed()
	c.stats.FailedReads += len(failed)
	if len(failed) > 0 {
		c.logger.Verbose("Sample %d: %d/%d signal(s) failed", c.stats.Samples, len(failed), len(c.names))
		for _, name := range failed {
			c.logger.Debug("  %s: %v", name, results[name].Err)
		}
	}
	return results
}

func (c *Collector) emit(buf *buffer, sink func(Row) error) error {
	ts := buf.window
	if c.align == 0 {
		ts = c.now()
	}
	row := buf.row(c.runID, ts)
	c.stats.Rows++
	c.logger.Verbose("Row %d: %d sample(s)", c.stats.Rows, row.Samples)
	if err := sink(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

// buffer accumulates per-signal sums over one cycle.
type buffer struct {
	names  []string
	sums   map[string]float64
	counts map[string]int
	count  int
	window time.Time // start of the aligned window the samples fall in
}

func newBuffer(names []string) *buffer {
	return &buffer{
		names:  names,
		sums:   make(map[string]float64, len(names)),
		counts: make(map[string]int, len(names)),
	}
}

func (b *buffer) add(results dispatch.Results) {
	b.count++
	for name, res := range results {
		if res.Err != nil {
			continue
		}
		b.sums[name] += res.Value.Number
		b.counts[name]++
	}
}

func (b *buffer) row(runID string, ts time.Time) Row {
	values := make(map[string]*float64, len(b.names))
	for _, name := range b.names {
		n := b.counts[name]
		if n == 0 {
			values[name] = nil
			continue
		}
		avg := b.sums[name] / float64(n)
		values[name] = &avg
	}
	return Row{
		Timestamp: ts,
		RunID:     runID,
		Samples:   b.count,
		Values:    values,
	}
}
