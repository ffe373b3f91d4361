package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"

	farmregErrors "github.com/tturner/farmreg/internal/errors"
	"github.com/tturner/farmreg/internal/logging"
)

// ModbusConfig configures a Modbus/TCP register channel.
type ModbusConfig struct {
	Host           string
	Port           int
	UnitID         uint8
	Timeout        time.Duration // per transaction and per dial
	IdleTimeout    time.Duration // close the socket after this much inactivity; 0 = never
	ConnectRetries int           // connection attempts before giving up
	RetryDelay     time.Duration // fixed delay between attempts
	TraceFrames    bool          // log raw frames to stderr
}

// DefaultModbusConfig returns the controller defaults.
func DefaultModbusConfig() ModbusConfig {
	return ModbusConfig{
		Port:           502,
		UnitID:         1,
		Timeout:        DefaultTimeout,
		ConnectRetries: DefaultConnectRetries,
		RetryDelay:     DefaultRetryDelay,
	}
}

// Address returns host:port.
func (c ModbusConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ModbusChannel is a Channel over Modbus/TCP using holding register
// function codes 0x03 and 0x06.
//
// A transaction abandoned through its context keeps running on the wire;
// the next transaction waits for it to finish.
type ModbusChannel struct {
	cfg    ModbusConfig
	logger *logging.Logger
	gate   gate

	wire    sync.Mutex // one transaction on the socket at a time
	handler *modbus.TCPClientHandler
	client  modbus.Client

	connected atomic.Bool
	closed    atomic.Bool
}

// NewModbusChannel creates an unconnected channel.
func NewModbusChannel(cfg ModbusConfig, logger *logging.Logger) *ModbusChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = DefaultConnectRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	handler := modbus.NewTCPClientHandler(cfg.Address())
	handler.Timeout = cfg.Timeout
	handler.IdleTimeout = cfg.IdleTimeout
	handler.SlaveId = cfg.UnitID
	if cfg.TraceFrames {
		handler.Logger = log.New(os.Stderr, "modbus: ", log.LstdFlags)
	}

	return &ModbusChannel{
		cfg:     cfg,
		logger:  logger,
		gate:    newGate(),
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

// Config returns the effective configuration.
func (c *ModbusChannel) Config() ModbusConfig {
	return c.cfg
}

// Connect dials the controller, retrying up to ConnectRetries times with
// RetryDelay between attempts.
func (c *ModbusChannel) Connect(ctx context.Context) error {
	if err := c.gate.acquire(ctx, "connect"); err != nil {
		return err
	}
	defer c.gate.release()
	return c.ensureConnected(ctx)
}

// IsConnected reports whether the socket is believed to be up. A transport
// failure marks the channel disconnected; the next operation reconnects.
func (c *ModbusChannel) IsConnected() bool {
	return c.connected.Load()
}

// ReadWords reads count holding registers starting at addr.
func (c *ModbusChannel) ReadWords(ctx context.Context, addr, count uint16) ([]uint16, error) {
	if err := c.gate.acquire(ctx, "read_words"); err != nil {
		return nil, err
	}
	defer c.gate.release()
	return c.readWords(ctx, addr, count)
}

// WriteWord writes one holding register.
func (c *ModbusChannel) WriteWord(ctx context.Context, addr, value uint16) error {
	if err := c.gate.acquire(ctx, "write_word"); err != nil {
		return err
	}
	defer c.gate.release()
	return c.writeWord(ctx, addr, value)
}

// Exclusive runs fn while holding the channel.
func (c *ModbusChannel) Exclusive(ctx context.Context, fn func(rio RegisterIO) error) error {
	if err := c.gate.acquire(ctx, "exclusive"); err != nil {
		return err
	}
	defer c.gate.release()
	return fn(modbusSection{c})
}

// Close closes the socket. The channel cannot be reused.
func (c *ModbusChannel) Close() error {
	c.closed.Store(true)
	c.wire.Lock()
	defer c.wire.Unlock()
	c.connected.Store(false)
	return c.handler.Close()
}

type modbusSection struct {
	c *ModbusChannel
}

func (s modbusSection) ReadWords(ctx context.Context, addr, count uint16) ([]uint16, error) {
	return s.c.readWords(ctx, addr, count)
}

func (s modbusSection) WriteWord(ctx context.Context, addr, value uint16) error {
	return s.c.writeWord(ctx, addr, value)
}

func (c *ModbusChannel) readWords(ctx context.Context, addr, count uint16) ([]uint16, error) {
	const op = "read_words"
	if err := checkReadCount(addr, count); err != nil {
		return nil, err
	}
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := c.transact(ctx, op, addr, func(client modbus.Client) ([]byte, error) {
		return client.ReadHoldingRegisters(addr, count)
	})
	if err != nil {
		return nil, err
	}
	if len(data) != 2*int(count) {
		return nil, farmregErrors.New(farmregErrors.KindChannel, op,
			"expected %d bytes for %d registers at %d, got %d", 2*int(count), count, addr, len(data))
	}

	words := make([]uint16, count)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	c.logger.Debug("read %d word(s) @%d in %s", count, addr, time.Since(start))
	c.logger.LogWords("read", addr, words)
	return words, nil
}

func (c *ModbusChannel) writeWord(ctx context.Context, addr, value uint16) error {
	const op = "write_word"
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	start := time.Now()
	_, err := c.transact(ctx, op, addr, func(client modbus.Client) ([]byte, error) {
		return client.WriteSingleRegister(addr, value)
	})
	if err != nil {
		return err
	}
	c.logger.Debug("wrote @%d in %s", addr, time.Since(start))
	c.logger.LogWords("write", addr, []uint16{value})
	return nil
}

// ensureConnected dials when the socket is down. The caller holds the gate.
func (c *ModbusChannel) ensureConnected(ctx context.Context) error {
	const op = "connect"
	if c.closed.Load() {
		return errClosed(op)
	}
	if c.connected.Load() {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.ConnectRetries; attempt++ {
		if attempt > 1 {
			c.logger.Verbose("Reconnect attempt %d/%d to %s in %s", attempt, c.cfg.ConnectRetries, c.cfg.Address(), c.cfg.RetryDelay)
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				return contextError(op, err)
			}
		}

		c.wire.Lock()
		err := c.handler.Connect()
		if err == nil {
			c.connected.Store(true)
		}
		c.wire.Unlock()

		if err == nil {
			c.logger.Verbose("Connected to %s (unit %d)", c.cfg.Address(), c.cfg.UnitID)
			return nil
		}
		lastErr = err
		c.logger.Error("Connect to %s failed (attempt %d/%d): %v", c.cfg.Address(), attempt, c.cfg.ConnectRetries, err)
	}

	return classify(op, -1, fmt.Errorf("%s unreachable after %d attempt(s): %w", c.cfg.Address(), c.cfg.ConnectRetries, lastErr))
}

type transactResult struct {
	data []byte
	err  error
}

// transact runs one request on the socket. The caller stops waiting when
// ctx ends or the transaction timeout elapses; the request itself finishes
// in the background and its result is discarded.
func (c *ModbusChannel) transact(ctx context.Context, op string, addr uint16, fn func(modbus.Client) ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, abandoned(op, addr, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout+c.cfg.Timeout/2)
	defer cancel()

	done := make(chan transactResult, 1)
	go func() {
		c.wire.Lock()
		defer c.wire.Unlock()

		// Nothing goes on the wire once the caller has given up.
		if err := ctx.Err(); err != nil {
			done <- transactResult{err: abandoned(op, addr, err)}
			return
		}
		data, err := fn(c.client)
		if err != nil {
			err = classify(op, int(addr), err)
			if !isDeviceException(err) {
				// The stream may hold a late reply; start over.
				c.connected.Store(false)
				c.handler.Close()
			}
		}
		done <- transactResult{data: data, err: err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, &farmregErrors.Error{
			Kind:    kindForContext(ctx.Err()),
			Op:      op,
			Address: int(addr),
			Msg:     "no response",
			Err:     ctx.Err(),
		}
	}
}

// abandoned reports a request that was never sent.
func abandoned(op string, addr uint16, err error) error {
	return &farmregErrors.Error{
		Kind:    kindForContext(err),
		Op:      op,
		Address: int(addr),
		Msg:     "not sent",
		Err:     err,
	}
}

// classify maps a transport error onto the failure taxonomy.
func classify(op string, addr int, err error) error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return &farmregErrors.Error{
			Kind:    farmregErrors.KindChannel,
			Op:      op,
			Address: addr,
			Msg:     fmt.Sprintf("device exception %d", mbErr.ExceptionCode),
			Err:     err,
		}
	}

	kind := farmregErrors.KindOf(err)
	if kind == farmregErrors.KindUnknown {
		kind = farmregErrors.KindChannel
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = farmregErrors.KindTimeout
	}
	return &farmregErrors.Error{Kind: kind, Op: op, Address: addr, Err: err}
}

func isDeviceException(err error) bool {
	var mbErr *modbus.ModbusError
	return errors.As(err, &mbErr)
}

func kindForContext(err error) farmregErrors.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return farmregErrors.KindTimeout
	}
	return farmregErrors.KindChannel
}
