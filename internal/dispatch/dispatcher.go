// Package dispatch resolves signal names through the catalog and turns them
// into register channel operations plus codec conversions.
package dispatch

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tturner/farmreg/internal/catalog"
	"github.com/tturner/farmreg/internal/channel"
	"github.com/tturner/farmreg/internal/codec"
	farmregErrors "github.com/tturner/farmreg/internal/errors"
	"github.com/tturner/farmreg/internal/logging"
)

// MaxRawWriteAddress is the last address of the settings area. Raw writes
// beyond it are refused.
const MaxRawWriteAddress = 59

// Dispatcher reads and writes signals by name over one channel. It is safe
// for concurrent use; serialization is the channel's job.
type Dispatcher struct {
	catalog *catalog.Catalog
	ch      channel.Channel
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for per-operation logging.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithClock overrides the time source used for Value.ReadAt.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New creates a dispatcher over cat and ch.
func New(cat *catalog.Catalog, ch channel.Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog: cat,
		ch:      ch,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Catalog returns the catalog names are resolved against.
func (d *Dispatcher) Catalog() *catalog.Catalog {
	return d.catalog
}

// Channel returns the underlying register channel.
func (d *Dispatcher) Channel() channel.Channel {
	return d.ch
}

// Read performs one channel read of the signal's word(s) and decodes it.
// Bit fields are only read; nothing is written back.
func (d *Dispatcher) Read(ctx context.Context, name string) (*Value, error) {
	sig, ok := d.catalog.Lookup(name)
	if !ok {
		return nil, farmregErrors.NotFound(name)
	}

	start := time.Now()
	words, err := d.ch.ReadWords(ctx, sig.Address, uint16(sig.WordCount))
	if err != nil {
		err = farmregErrors.WithSignal(err, "read", name, sig.Address)
		d.logger.LogOperation("read", name, sig.Address, false, time.Since(start), err)
		return nil, err
	}

	v, err := d.decode(sig, words)
	d.logger.LogOperation("read", name, sig.Address, err == nil, time.Since(start), err)
	return v, err
}

// Write encodes value and stores it. Range and permission failures are
// reported before any channel call. Bit fields are updated by a
// read-modify-write held exclusively on the channel; if the read fails,
// nothing is written.
func (d *Dispatcher) Write(ctx context.Context, name string, value float64) error {
	sig, ok := d.catalog.Lookup(name)
	if !ok {
		return farmregErrors.NotFound(name)
	}
	if !sig.Writable() {
		return farmregErrors.WithSignal(
			farmregErrors.New(farmregErrors.KindNotWritable, "write", "%s signal is read-only", describeAccess(sig)),
			"write", name, sig.Address)
	}

	start := time.Now()
	err := d.write(ctx, sig, value)
	if err != nil {
		err = farmregErrors.WithSignal(err, "write", name, sig.Address)
	}
	d.logger.LogOperation("write", name, sig.Address, err == nil, time.Since(start), err)
	return err
}

func (d *Dispatcher) write(ctx context.Context, sig *catalog.Signal, value float64) error {
	if !sig.Kind.IsBitField() {
		raw, err := codec.EncodeRegister(sig, value)
		if err != nil {
			return err
		}
		return d.ch.WriteWord(ctx, sig.Address, raw)
	}

	field, err := codec.EncodeField(sig, value)
	if err != nil {
		return err
	}
	return d.ch.Exclusive(ctx, func(rio channel.RegisterIO) error {
		words, err := rio.ReadWords(ctx, sig.Address, 1)
		if err != nil {
			return err
		}
		updated := codec.Apply(sig, words[0], field)
		d.logger.Debug("%s: @%d %04x -> %04x", sig.Name, sig.Address, words[0], updated)
		return rio.WriteWord(ctx, sig.Address, updated)
	})
}

// WriteVerify writes value and reads the signal back. A read-back that
// differs from the encoded value is reported as a channel error alongside
// the value that was read.
func (d *Dispatcher) WriteVerify(ctx context.Context, name string, value float64) (*Value, error) {
	if err := d.Write(ctx, name, value); err != nil {
		return nil, err
	}

	v, err := d.Read(ctx, name)
	if err != nil {
		return nil, err
	}

	sig := v.Signal
	want := value
	if !sig.Kind.IsBitField() {
		// Compare against what the encoder actually sent.
		want = math.Round(value*sig.Scale) / sig.Scale
	}
	if math.Abs(v.Number-want) > 1e-9 {
		return v, farmregErrors.WithSignal(
			farmregErrors.New(farmregErrors.KindChannel, "verify", "read back %s, wrote %s",
				FormatNumber(sig, v.Number), FormatNumber(sig, want)),
			"verify", name, sig.Address)
	}
	return v, nil
}

// ReadMany reads every named signal. Signals sharing an address are decoded
// from a single channel read of that address, so each distinct address
// costs exactly one round trip and all of its fields reflect the same
// instant. A failure only affects the names it covers.
func (d *Dispatcher) ReadMany(ctx context.Context, names []string) Results {
	results := make(Results, len(names))

	groups := make(map[uint16][]*catalog.Signal)
	for _, name := range names {
		if _, seen := results[name]; seen {
			continue
		}
		sig, ok := d.catalog.Lookup(name)
		if !ok {
			results[name] = Result{Err: farmregErrors.NotFound(name)}
			continue
		}
		results[name] = Result{}
		groups[sig.Address] = append(groups[sig.Address], sig)
	}

	addrs := make([]int, 0, len(groups))
	for addr := range groups {
		addrs = append(addrs, int(addr))
	}
	sort.Ints(addrs)

	for _, a := range addrs {
		addr := uint16(a)
		sigs := groups[addr]

		count := 1
		for _, sig := range sigs {
			if sig.WordCount > count {
				count = sig.WordCount
			}
		}

		start := time.Now()
		words, err := d.ch.ReadWords(ctx, addr, uint16(count))
		rtt := time.Since(start)
		for _, sig := range sigs {
			if err != nil {
				results[sig.Name] = Result{Err: farmregErrors.WithSignal(err, "read", sig.Name, addr)}
				continue
			}
			v, derr := d.decode(sig, words)
			results[sig.Name] = Result{Value: v, Err: derr}
		}
		d.logger.LogOperation("read_many", fmt.Sprintf("%d signal(s)", len(sigs)), addr, err == nil, rtt, err)
	}

	return results
}

// ReadAddress reads count raw words starting at addr.
func (d *Dispatcher) ReadAddress(ctx context.Context, addr, count uint16) ([]uint16, error) {
	start := time.Now()
	words, err := d.ch.ReadWords(ctx, addr, count)
	d.logger.LogOperation("raw_read", "", addr, err == nil, time.Since(start), err)
	return words, err
}

// WriteRaw stores a raw word in the settings area (addresses 0-59).
func (d *Dispatcher) WriteRaw(ctx context.Context, addr, value uint16) error {
	if addr > MaxRawWriteAddress {
		return &farmregErrors.Error{
			Kind:    farmregErrors.KindNotWritable,
			Op:      "raw_write",
			Address: int(addr),
			Msg:     fmt.Sprintf("raw writes are limited to the settings area 0-%d", MaxRawWriteAddress),
		}
	}

	start := time.Now()
	err := d.ch.WriteWord(ctx, addr, value)
	d.logger.LogOperation("raw_write", "", addr, err == nil, time.Since(start), err)
	return err
}

func (d *Dispatcher) decode(sig *catalog.Signal, words []uint16) (*Value, error) {
	n, err := codec.Decode(sig, words)
	if err != nil {
		return nil, farmregErrors.WithSignal(err, "read", sig.Name, sig.Address)
	}
	raw := make([]uint16, sig.WordCount)
	copy(raw, words)
	return &Value{Signal: sig, Raw: raw, Number: n, ReadAt: d.now()}, nil
}

func describeAccess(sig *catalog.Signal) string {
	if sig.WordCount > 1 {
		return fmt.Sprintf("%d-word", sig.WordCount)
	}
	return string(sig.Kind)
}
