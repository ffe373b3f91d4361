package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	farmregErrors "github.com/tturner/farmreg/internal/errors"
	"github.com/tturner/farmreg/internal/modbus"
)

func newMemory(t *testing.T) *MemoryChannel {
	t.Helper()
	ch := NewMemoryChannel(modbus.NewDataStore(100), nil)
	assert.NilError(t, ch.Connect(context.Background()))
	return ch
}

func TestMemoryReadWrite(t *testing.T) {
	ctx := context.Background()
	ch := newMemory(t)
	assert.Assert(t, ch.IsConnected())

	assert.NilError(t, ch.WriteWord(ctx, 70, 0xFFF9))
	assert.NilError(t, ch.WriteWord(ctx, 71, 253))

	words, err := ch.ReadWords(ctx, 70, 2)
	assert.NilError(t, err)
	assert.DeepEqual(t, words, []uint16{0xFFF9, 253})
	assert.Equal(t, ch.Reads(), int64(1))
	assert.Equal(t, ch.Writes(), int64(2))

	v, err := ch.Store().GetHoldingRegister(70)
	assert.NilError(t, err)
	assert.Equal(t, v, uint16(0xFFF9))

	ch.ResetCounters()
	assert.Equal(t, ch.Reads()+ch.Writes(), int64(0))
}

func TestMemoryDeviceException(t *testing.T) {
	ch := newMemory(t)

	_, err := ch.ReadWords(context.Background(), 99, 5)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrChannel))
	assert.Assert(t, is.Contains(err.Error(), "Illegal_Data_Address"))

	err = ch.WriteWord(context.Background(), 500, 1)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrChannel))
}

func TestReadCountBounds(t *testing.T) {
	ch := newMemory(t)

	_, err := ch.ReadWords(context.Background(), 0, 0)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrValueOutOfRange))
	_, err = ch.ReadWords(context.Background(), 0, MaxReadCount+1)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrValueOutOfRange))
	_, err = ch.ReadWords(context.Background(), 0xFFFF, 2)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrValueOutOfRange))
	assert.Equal(t, ch.Reads(), int64(0))
}

func TestMemoryFaults(t *testing.T) {
	ctx := context.Background()
	ch := newMemory(t)

	ch.FailReads(io.ErrUnexpectedEOF)
	_, err := ch.ReadWords(ctx, 0, 1)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrChannel))
	assert.Assert(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, farmregErrors.KindOf(err), farmregErrors.KindChannel)

	ch.FailReads(farmregErrors.ErrTimeout)
	_, err = ch.ReadWords(ctx, 0, 1)
	assert.Equal(t, farmregErrors.KindOf(err), farmregErrors.KindTimeout)

	ch.FailReads(nil)
	_, err = ch.ReadWords(ctx, 0, 1)
	assert.NilError(t, err)

	ch.FailWrites(io.ErrClosedPipe)
	err = ch.WriteWord(ctx, 0, 1)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrChannel))
	v, _ := ch.Store().GetHoldingRegister(0)
	assert.Equal(t, v, uint16(0))
}

func TestMemoryLatencyTimeout(t *testing.T) {
	ch := newMemory(t)
	ch.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := ch.ReadWords(ctx, 0, 1)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrTimeout), "got %v", err)
	assert.Assert(t, time.Since(start) < 500*time.Millisecond)
}

func TestGateWaitHonoursContext(t *testing.T) {
	ch := newMemory(t)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = ch.Exclusive(context.Background(), func(RegisterIO) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.ReadWords(ctx, 0, 1)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrTimeout), "got %v", err)

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	err = ch.WriteWord(ctx2, 0, 1)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrChannel), "got %v", err)
	assert.Equal(t, ch.Writes(), int64(0))
}

func TestMemoryCancelledContextLeavesRegister(t *testing.T) {
	ch := newMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 50; i++ {
		err := ch.WriteWord(ctx, 9, 0x9800)
		assert.Assert(t, errors.Is(err, farmregErrors.ErrChannel), "got %v", err)

		err = ch.Exclusive(ctx, func(rio RegisterIO) error {
			return rio.WriteWord(ctx, 9, 0x0001)
		})
		assert.Assert(t, err != nil)
	}
	v, _ := ch.Store().GetHoldingRegister(9)
	assert.Equal(t, v, uint16(0))

	_, err := ch.ReadWords(ctx, 0, 1)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrChannel))
}

func TestExclusiveSerializesReadModifyWrite(t *testing.T) {
	ctx := context.Background()
	ch := newMemory(t)

	const workers = 16
	var wg sync.WaitGroup
	for bit := 0; bit < workers; bit++ {
		wg.Add(1)
		go func(bit int) {
			defer wg.Done()
			err := ch.Exclusive(ctx, func(rio RegisterIO) error {
				words, err := rio.ReadWords(ctx, 9, 1)
				if err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				return rio.WriteWord(ctx, 9, words[0]|1<<uint(bit))
			})
			assert.Check(t, err)
		}(bit)
	}
	wg.Wait()

	v, _ := ch.Store().GetHoldingRegister(9)
	assert.Equal(t, v, uint16(0xFFFF))
}

func TestCloseIsTerminal(t *testing.T) {
	ch := newMemory(t)
	assert.NilError(t, ch.Close())
	assert.Assert(t, !ch.IsConnected())

	_, err := ch.ReadWords(context.Background(), 0, 1)
	assert.Assert(t, errors.Is(err, farmregErrors.ErrChannel))
	assert.Assert(t, is.Contains(err.Error(), "closed"))
	assert.Assert(t, ch.Connect(context.Background()) != nil)
}
