package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/tturner/farmreg/internal/catalog"
	farmregErrors "github.com/tturner/farmreg/internal/errors"
)

func intp(v int) *int { return &v }

func register(scale float64) *catalog.Signal {
	return &catalog.Signal{Name: "reg", Kind: catalog.KindRegister, Access: catalog.AccessWrite, Scale: scale, WordCount: 1}
}

func signed(scale float64) *catalog.Signal {
	return &catalog.Signal{Name: "temp", Kind: catalog.KindSignedRegister, Access: catalog.AccessWrite, Scale: scale, WordCount: 1}
}

func bit(pos int) *catalog.Signal {
	return &catalog.Signal{Name: "flag", Kind: catalog.KindBit, Access: catalog.AccessWrite, Bit: intp(pos), Scale: 1, WordCount: 1}
}

func bitRange(start, end int) *catalog.Signal {
	return &catalog.Signal{Name: "field", Kind: catalog.KindBitRange, Access: catalog.AccessWrite,
		BitStart: intp(start), BitEnd: intp(end), Scale: 1, WordCount: 1}
}

func TestSigned16AllValues(t *testing.T) {
	for raw := 0; raw <= 0xFFFF; raw++ {
		v := Signed16(uint16(raw))
		if v < -32768 || v > 32767 {
			t.Fatalf("Signed16(%d) = %d out of range", raw, v)
		}
		if uint16(((v%65536)+65536)%65536) != uint16(raw) {
			t.Fatalf("Signed16(%d) = %d does not reduce back to raw", raw, v)
		}
	}
}

func TestDecodeExamples(t *testing.T) {
	tests := []struct {
		name  string
		sig   *catalog.Signal
		words []uint16
		want  float64
	}{
		{"signed negative", signed(10), []uint16{0xFFF9}, -0.7},
		{"signed positive", signed(10), []uint16{253}, 25.3},
		{"signed min", signed(1), []uint16{0x8000}, -32768},
		{"unsigned high", register(1), []uint16{0xFFF9}, 65529},
		{"unsigned scaled", register(10), []uint16{655}, 65.5},
		{"bit set", bit(14), []uint16{0x4000}, 1},
		{"bit clear", bit(14), []uint16{0xBFFF}, 0},
		{"range", bitRange(5, 7), []uint16{0x00A0}, 5},
		{"range top", bitRange(11, 15), []uint16{0x9800}, 19},
		{"range full word", bitRange(0, 15), []uint16{0xFFFF}, 65535},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.sig, tt.words)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Decode = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeComposite(t *testing.T) {
	sig := &catalog.Signal{Name: "countdown", Kind: catalog.KindRegister, Access: catalog.AccessRead, Scale: 1, WordCount: 2}

	got, err := Decode(sig, []uint16{0x0001, 0x0002})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 65538 {
		t.Errorf("Decode = %v, want 65538", got)
	}

	got, _ = Decode(sig, []uint16{0xFFFF, 0xFFFF})
	if got != math.MaxUint32 {
		t.Errorf("Decode = %v, want %v", got, uint32(math.MaxUint32))
	}

	if _, err := Decode(sig, []uint16{1}); err == nil {
		t.Error("expected error for a short word slice")
	}
}

func TestEncodeRegisterRange(t *testing.T) {
	tests := []struct {
		name    string
		sig     *catalog.Signal
		value   float64
		want    uint16
		wantErr bool
	}{
		{"unsigned zero", register(1), 0, 0, false},
		{"unsigned max", register(1), 65535, 0xFFFF, false},
		{"unsigned over", register(1), 65536, 0, true},
		{"unsigned negative", register(1), -1, 0, true},
		{"unsigned scaled", register(10), 25.3, 253, false},
		{"unsigned scaled over", register(10), 6553.6, 0, true},
		{"rounds half away", register(10), 0.05, 1, false},
		{"signed negative", signed(10), -0.7, 0xFFF9, false},
		{"signed min", signed(1), -32768, 0x8000, false},
		{"signed max", signed(1), 32767, 0x7FFF, false},
		{"signed over", signed(1), 32768, 0, true},
		{"signed under", signed(1), -32769, 0, true},
		{"signed scaled over", signed(10), 3276.8, 0, true},
		{"NaN", register(1), math.NaN(), 0, true},
		{"Inf", signed(1), math.Inf(-1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeRegister(tt.sig, tt.value)
			if tt.wantErr {
				if !errors.Is(err, farmregErrors.ErrValueOutOfRange) {
					t.Fatalf("expected ValueOutOfRange, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeRegister: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeRegister = %#04x, want %#04x", got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, scale := range []float64{1, 10, 100} {
		for _, sig := range []*catalog.Signal{register(scale), signed(scale)} {
			lo, hi := 0.0, float64(MaxUnsigned)/scale
			if sig.Kind == catalog.KindSignedRegister {
				lo, hi = float64(MinSigned)/scale, float64(MaxSigned)/scale
			}
			step := (hi - lo) / 997
			for v := lo; v <= hi; v += step {
				raw, err := EncodeRegister(sig, v)
				if err != nil {
					t.Fatalf("%s scale %v: EncodeRegister(%v): %v", sig.Kind, scale, v, err)
				}
				got, _ := Decode(sig, []uint16{raw})
				if math.Abs(got-v) > 1/scale {
					t.Fatalf("%s scale %v: round trip %v -> %#04x -> %v", sig.Kind, scale, v, raw, got)
				}
			}
		}
	}
}

func TestEncodeField(t *testing.T) {
	tests := []struct {
		name    string
		sig     *catalog.Signal
		value   float64
		want    uint16
		wantErr bool
	}{
		{"bit one", bit(3), 1, 1, false},
		{"bit zero", bit(3), 0, 0, false},
		{"bit two", bit(3), 2, 0, true},
		{"bit fraction", bit(3), 0.5, 0, true},
		{"range max", bitRange(11, 15), 31, 31, false},
		{"range 19", bitRange(11, 15), 19, 19, false},
		{"range over mask", bitRange(11, 15), 40, 0, true},
		{"range negative", bitRange(11, 15), -1, 0, true},
		{"range fraction", bitRange(0, 9), 2.5, 0, true},
		{"range NaN", bitRange(0, 9), math.NaN(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeField(tt.sig, tt.value)
			if tt.wantErr {
				if !errors.Is(err, farmregErrors.ErrValueOutOfRange) {
					t.Fatalf("expected ValueOutOfRange, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeField: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeField = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestApplyRange(t *testing.T) {
	if got := Apply(bitRange(11, 15), 0x0000, 19); got != 0x9800 {
		t.Errorf("Apply 19 @11-15 = %#04x, want 0x9800", got)
	}
	// Neighbouring fields stay intact.
	if got := ApplyRange(0xFFFF, 2, 7, 0); got != 0xFF03 {
		t.Errorf("ApplyRange clear 2-7 = %#04x, want 0xff03", got)
	}
	if got := ApplyRange(0x0000, 0, 15, 0xBEEF); got != 0xBEEF {
		t.Errorf("ApplyRange full word = %#04x, want 0xbeef", got)
	}
	if got := ApplyRange(0x0000, 5, 7, 0xFF); got != 0x00E0 {
		t.Errorf("ApplyRange truncates = %#04x, want 0x00e0", got)
	}
}

func TestApplyBitIdempotent(t *testing.T) {
	for raw := 0; raw <= 0xFFFF; raw += 0x0101 {
		orig := uint16(raw)
		for pos := 0; pos < 16; pos++ {
			once := ApplyBit(orig, pos, true)
			twice := ApplyBit(once, pos, true)
			if once != twice {
				t.Fatalf("set twice %#04x bit %d: %#04x != %#04x", orig, pos, twice, once)
			}
			cleared := ApplyBit(once, pos, false)
			other := ^uint16(1 << uint(pos))
			if cleared&other != orig&other {
				t.Fatalf("set/clear %#04x bit %d disturbed other bits: %#04x", orig, pos, cleared)
			}
			if Bit(once, pos) != 1 || Bit(cleared, pos) != 0 {
				t.Fatalf("bit %d not reflected after set/clear of %#04x", pos, orig)
			}
		}
	}
}

func TestDecodeCatalogSignals(t *testing.T) {
	c := catalog.Default()

	// Every catalog signal decodes an all-ones word without error and
	// stays within its kind's range.
	for _, sig := range c.ListAll() {
		words := []uint16{0xFFFF, 0xFFFF}
		v, err := Decode(sig, words)
		if err != nil {
			t.Fatalf("%s: %v", sig.Name, err)
		}
		switch sig.Kind {
		case catalog.KindBit:
			if v != 1 {
				t.Errorf("%s: bit decoded %v", sig.Name, v)
			}
		case catalog.KindBitRange:
			if v != float64(sig.Mask()) {
				t.Errorf("%s: range decoded %v, want mask %d", sig.Name, v, sig.Mask())
			}
		case catalog.KindSignedRegister:
			if v >= 0 {
				t.Errorf("%s: signed decode of 0xffff = %v, want negative", sig.Name, v)
			}
		}
	}

	fanOff := c.MustLookup("circulation_fan_off_time")
	field, err := EncodeField(fanOff, 19)
	if err != nil {
		t.Fatalf("EncodeField: %v", err)
	}
	if got := Apply(fanOff, 0, field); got != 0x9800 {
		t.Errorf("circulation_fan_off_time=19 -> %#04x, want 0x9800", got)
	}
}
