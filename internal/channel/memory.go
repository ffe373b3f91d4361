package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	farmregErrors "github.com/tturner/farmreg/internal/errors"
	"github.com/tturner/farmreg/internal/logging"
	"github.com/tturner/farmreg/internal/modbus"
)

// MemoryChannel is an in-process Channel backed by a register bank. Requests
// go through the bank's Modbus PDU handlers, so device exceptions surface
// the same way they do on the wire. It also counts operations and can
// inject faults, which makes it the channel of choice for tests and
// --simulate runs.
type MemoryChannel struct {
	store  *modbus.DataStore
	logger *logging.Logger
	gate   gate

	connected atomic.Bool
	closed    atomic.Bool
	txID      atomic.Uint32

	reads  atomic.Int64
	writes atomic.Int64

	mu       sync.Mutex
	readErr  error
	writeErr error
	latency  time.Duration
}

// NewMemoryChannel creates a channel over store.
func NewMemoryChannel(store *modbus.DataStore, logger *logging.Logger) *MemoryChannel {
	return &MemoryChannel{
		store:  store,
		logger: logger,
		gate:   newGate(),
	}
}

// Store returns the backing register bank.
func (c *MemoryChannel) Store() *modbus.DataStore {
	return c.store
}

// Connect marks the channel connected.
func (c *MemoryChannel) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errClosed("connect")
	}
	c.connected.Store(true)
	return nil
}

// IsConnected reports whether Connect succeeded and Close was not called.
func (c *MemoryChannel) IsConnected() bool {
	return c.connected.Load()
}

// ReadWords reads count registers starting at addr.
func (c *MemoryChannel) ReadWords(ctx context.Context, addr, count uint16) ([]uint16, error) {
	if err := c.gate.acquire(ctx, "read_words"); err != nil {
		return nil, err
	}
	defer c.gate.release()
	return c.readWords(ctx, addr, count)
}

// WriteWord writes one register.
func (c *MemoryChannel) WriteWord(ctx context.Context, addr, value uint16) error {
	if err := c.gate.acquire(ctx, "write_word"); err != nil {
		return err
	}
	defer c.gate.release()
	return c.writeWord(ctx, addr, value)
}

// Exclusive runs fn while holding the channel.
func (c *MemoryChannel) Exclusive(ctx context.Context, fn func(rio RegisterIO) error) error {
	if err := c.gate.acquire(ctx, "exclusive"); err != nil {
		return err
	}
	defer c.gate.release()
	return fn(memorySection{c})
}

// Close ends the session.
func (c *MemoryChannel) Close() error {
	c.closed.Store(true)
	c.connected.Store(false)
	return nil
}

// Reads returns the number of read transactions attempted.
func (c *MemoryChannel) Reads() int64 {
	return c.reads.Load()
}

// Writes returns the number of write transactions attempted.
func (c *MemoryChannel) Writes() int64 {
	return c.writes.Load()
}

// ResetCounters zeroes the read and write counters.
func (c *MemoryChannel) ResetCounters() {
	c.reads.Store(0)
	c.writes.Store(0)
}

// FailReads makes every following read fail with err; nil clears the fault.
func (c *MemoryChannel) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// FailWrites makes every following write fail with err; nil clears the fault.
func (c *MemoryChannel) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// SetLatency delays every transaction by d.
func (c *MemoryChannel) SetLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = d
}

type memorySection struct {
	c *MemoryChannel
}

func (s memorySection) ReadWords(ctx context.Context, addr, count uint16) ([]uint16, error) {
	return s.c.readWords(ctx, addr, count)
}

func (s memorySection) WriteWord(ctx context.Context, addr, value uint16) error {
	return s.c.writeWord(ctx, addr, value)
}

func (c *MemoryChannel) readWords(ctx context.Context, addr, count uint16) ([]uint16, error) {
	const op = "read_words"
	if err := checkReadCount(addr, count); err != nil {
		return nil, err
	}
	c.reads.Add(1)
	if err := c.begin(ctx, op, addr, false); err != nil {
		return nil, err
	}

	resp := c.store.HandleRequest(modbus.Request{
		TransactionID: uint16(c.txID.Add(1)),
		UnitID:        1,
		Function:      modbus.FcReadHoldingRegisters,
		Data:          modbus.ReadHoldingRegistersRequest(addr, count),
	})
	if resp.IsException() {
		return nil, exceptionError(op, addr, resp.ExceptionCode())
	}
	words, err := modbus.DecodeReadRegistersResponse(resp.Data)
	if err != nil {
		return nil, farmregErrors.Wrap(farmregErrors.KindChannel, op, err)
	}
	c.logger.LogWords("read", addr, words)
	return words, nil
}

func (c *MemoryChannel) writeWord(ctx context.Context, addr, value uint16) error {
	const op = "write_word"
	c.writes.Add(1)
	if err := c.begin(ctx, op, addr, true); err != nil {
		return err
	}

	resp := c.store.HandleRequest(modbus.Request{
		TransactionID: uint16(c.txID.Add(1)),
		UnitID:        1,
		Function:      modbus.FcWriteSingleRegister,
		Data:          modbus.WriteSingleRegisterRequest(addr, value),
	})
	if resp.IsException() {
		return exceptionError(op, addr, resp.ExceptionCode())
	}
	c.logger.LogWords("write", addr, []uint16{value})
	return nil
}

// begin applies lifecycle checks, injected latency and injected faults.
func (c *MemoryChannel) begin(ctx context.Context, op string, addr uint16, write bool) error {
	if c.closed.Load() {
		return errClosed(op)
	}
	if err := ctx.Err(); err != nil {
		e := contextError(op, err).(*farmregErrors.Error)
		e.Address = int(addr)
		return e
	}
	c.connected.Store(true)

	c.mu.Lock()
	latency := c.latency
	fault := c.readErr
	if write {
		fault = c.writeErr
	}
	c.mu.Unlock()

	if err := sleep(ctx, latency); err != nil {
		e := contextError(op, err).(*farmregErrors.Error)
		e.Address = int(addr)
		return e
	}
	if fault != nil {
		return classify(op, int(addr), fault)
	}
	return nil
}

func exceptionError(op string, addr uint16, code modbus.ExceptionCode) error {
	return &farmregErrors.Error{
		Kind:    farmregErrors.KindChannel,
		Op:      op,
		Address: int(addr),
		Msg:     "device exception " + code.String(),
	}
}
