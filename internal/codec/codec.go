// Package codec converts between raw 16-bit holding register words and the
// decoded values of catalog signals. Every function here is pure; reading and
// writing the words is the dispatcher's job.
package codec

import (
	"math"

	"github.com/tturner/farmreg/internal/catalog"
	farmregErrors "github.com/tturner/farmreg/internal/errors"
)

// Word range limits for whole-register encodes.
const (
	MaxUnsigned = math.MaxUint16
	MinSigned   = math.MinInt16
	MaxSigned   = math.MaxInt16
)

// Signed16 reinterprets raw as a two's complement 16-bit integer.
func Signed16(raw uint16) int32 {
	if raw >= 0x8000 {
		return int32(raw) - 0x10000
	}
	return int32(raw)
}

// Composite joins a high and low word into an unsigned 32-bit value.
func Composite(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

// Bit extracts bit position pos from raw as 0 or 1.
func Bit(raw uint16, pos int) uint16 {
	return (raw >> uint(pos)) & 1
}

// Field extracts the unsigned field at bits start..end of raw.
func Field(raw uint16, start, end int) uint16 {
	mask := fieldMask(start, end)
	return (raw >> uint(start)) & mask
}

// Decode converts the words of one signal into its value. words must hold at
// least sig.WordCount entries, the first being the word at sig.Address.
func Decode(sig *catalog.Signal, words []uint16) (float64, error) {
	if len(words) < sig.WordCount {
		return 0, farmregErrors.New(farmregErrors.KindChannel, "decode",
			"%s needs %d word(s), got %d", sig.Name, sig.WordCount, len(words))
	}

	raw := words[0]
	switch sig.Kind {
	case catalog.KindRegister:
		if sig.WordCount == 2 {
			return float64(Composite(words[0], words[1])), nil
		}
		return float64(raw) / sig.Scale, nil
	case catalog.KindSignedRegister:
		return float64(Signed16(raw)) / sig.Scale, nil
	case catalog.KindBit:
		return float64(Bit(raw, *sig.Bit)), nil
	case catalog.KindBitRange:
		return float64(Field(raw, *sig.BitStart, *sig.BitEnd)), nil
	default:
		return 0, farmregErrors.New(farmregErrors.KindUnknown, "decode", "unknown kind %q", sig.Kind)
	}
}

// EncodeRegister converts a physical value into the raw word of a whole
// register signal. The scaled, rounded value must fit the kind's range.
func EncodeRegister(sig *catalog.Signal, value float64) (uint16, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, farmregErrors.OutOfRange("%v is not a finite number", value)
	}

	n := math.Round(value * sig.Scale)
	switch sig.Kind {
	case catalog.KindRegister:
		if n < 0 || n > MaxUnsigned {
			return 0, farmregErrors.OutOfRange("%v scales to %.0f, outside 0..%d", value, n, MaxUnsigned)
		}
		return uint16(n), nil
	case catalog.KindSignedRegister:
		if n < MinSigned || n > MaxSigned {
			return 0, farmregErrors.OutOfRange("%v scales to %.0f, outside %d..%d", value, n, MinSigned, MaxSigned)
		}
		v := int32(n)
		if v < 0 {
			v += 0x10000
		}
		return uint16(v & 0xFFFF), nil
	default:
		return 0, farmregErrors.New(farmregErrors.KindUnknown, "encode", "%s is not a whole-register signal", sig.Name)
	}
}

// EncodeField validates a bit or bit range value and returns it as an
// unshifted field. The result is ready for Apply.
func EncodeField(sig *catalog.Signal, value float64) (uint16, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, farmregErrors.OutOfRange("%v is not a finite number", value)
	}
	if value != math.Trunc(value) {
		return 0, farmregErrors.OutOfRange("%v is not an integer", value)
	}

	switch sig.Kind {
	case catalog.KindBit:
		if value != 0 && value != 1 {
			return 0, farmregErrors.OutOfRange("bit value must be 0 or 1, got %v", value)
		}
	case catalog.KindBitRange:
		mask := float64(sig.Mask())
		if value < 0 || value > mask {
			return 0, farmregErrors.OutOfRange("%v outside 0..%.0f for bits %s", value, mask, sig.BitsString())
		}
	default:
		return 0, farmregErrors.New(farmregErrors.KindUnknown, "encode", "%s is not a bit field", sig.Name)
	}
	return uint16(value), nil
}

// Apply merges an unshifted field value into raw at the signal's span,
// leaving every other bit untouched.
func Apply(sig *catalog.Signal, raw, field uint16) uint16 {
	start, end := sig.Span()
	return ApplyRange(raw, start, end, field)
}

// ApplyBit sets or clears bit pos of raw.
func ApplyBit(raw uint16, pos int, on bool) uint16 {
	if on {
		return raw | 1<<uint(pos)
	}
	return raw &^ (1 << uint(pos))
}

// ApplyRange replaces bits start..end of raw with value. value is truncated
// to the field width; callers validate it first.
func ApplyRange(raw uint16, start, end int, value uint16) uint16 {
	mask := fieldMask(start, end)
	clear := ^(mask << uint(start))
	return (raw & clear) | ((value & mask) << uint(start))
}

func fieldMask(start, end int) uint16 {
	width := end - start + 1
	return uint16((uint32(1) << uint(width)) - 1)
}
