// Package channel provides the register channel: a single logical session to
// one controller that reads and writes 16-bit holding registers.
//
// A channel serializes every operation. ReadWords and WriteWord each hold the
// channel for one transaction; Exclusive holds it across a caller-supplied
// sequence so a read-modify-write of a packed word is never interleaved with
// another caller's access.
package channel

import (
	"context"
	"errors"
	"time"

	farmregErrors "github.com/tturner/farmreg/internal/errors"
)

// Defaults applied when a config leaves a field zero.
const (
	DefaultTimeout        = 5 * time.Second
	DefaultConnectRetries = 3
	DefaultRetryDelay     = 2 * time.Second
	MaxReadCount          = 125
)

// RegisterIO is word-level access to the holding register bank.
type RegisterIO interface {
	ReadWords(ctx context.Context, addr, count uint16) ([]uint16, error)
	WriteWord(ctx context.Context, addr, value uint16) error
}

// Channel is a RegisterIO with a lifecycle and an exclusive section.
type Channel interface {
	RegisterIO

	// Connect establishes the session, retrying as configured.
	Connect(ctx context.Context) error
	IsConnected() bool

	// Exclusive runs fn while holding the channel. The RegisterIO passed to
	// fn must only be used inside fn.
	Exclusive(ctx context.Context, fn func(rio RegisterIO) error) error

	// Close ends the session. Operations after Close fail.
	Close() error
}

// gate is a one-slot semaphore whose acquisition can be abandoned through
// the context.
type gate chan struct{}

func newGate() gate {
	return make(gate, 1)
}

func (g gate) acquire(ctx context.Context, op string) error {
	// select picks randomly among ready cases; a dead context must never win
	// the slot.
	if err := ctx.Err(); err != nil {
		return contextError(op, err)
	}
	select {
	case g <- struct{}{}:
		return nil
	case <-ctx.Done():
		return contextError(op, ctx.Err())
	}
}

func (g gate) release() {
	<-g
}

// contextError classifies an abandoned wait. A deadline is a timeout; any
// other cancellation is reported as a channel failure.
func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return farmregErrors.Wrap(farmregErrors.KindTimeout, op, err)
	}
	return farmregErrors.Wrap(farmregErrors.KindChannel, op, err)
}

func checkReadCount(addr, count uint16) error {
	if count < 1 || count > MaxReadCount {
		return farmregErrors.New(farmregErrors.KindValueOutOfRange, "read_words",
			"count %d outside 1..%d", count, MaxReadCount)
	}
	if int(addr)+int(count) > 0x10000 {
		return farmregErrors.New(farmregErrors.KindValueOutOfRange, "read_words",
			"%d words at %d run past the address space", count, addr)
	}
	return nil
}

func errClosed(op string) error {
	return farmregErrors.New(farmregErrors.KindChannel, op, "channel closed")
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
