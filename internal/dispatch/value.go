package dispatch

import (
	"math"
	"strconv"
	"time"

	"github.com/tturner/farmreg/internal/catalog"
)

// Value is one decoded signal reading.
type Value struct {
	Signal *catalog.Signal
	Raw    []uint16 // the word(s) the value was decoded from
	Number float64
	ReadAt time.Time
}

// Int returns the value as an integer. Bit fields, composites and unscaled
// registers are always integral.
func (v *Value) Int() int64 {
	return int64(math.Round(v.Number))
}

// Bool reports whether the value is non-zero.
func (v *Value) Bool() bool {
	return v.Number != 0
}

// Text formats the number with as many decimals as the scale implies.
func (v *Value) Text() string {
	return FormatNumber(v.Signal, v.Number)
}

// String formats the number followed by the signal's unit.
func (v *Value) String() string {
	if v.Signal.Unit == "" {
		return v.Text()
	}
	return v.Text() + " " + v.Signal.Unit
}

// FormatNumber renders n for sig: 25.3 for a scale of 10, 253 for a scale
// of 1.
func FormatNumber(sig *catalog.Signal, n float64) string {
	return strconv.FormatFloat(n, 'f', Decimals(sig), 64)
}

// Decimals returns the number of fractional digits sig's scale resolves.
func Decimals(sig *catalog.Signal) int {
	if sig.Scale <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log10(sig.Scale)))
}

// Result is the outcome of one name in a batch read. Exactly one of Value
// and Err is set.
type Result struct {
	Value *Value
	Err   error
}

// Results maps signal names to their outcome.
type Results map[string]Result

// Numbers returns the decoded numbers of the successful reads.
func (r Results) Numbers() map[string]float64 {
	out := make(map[string]float64, len(r))
	for name, res := range r {
		if res.Err == nil {
			out[name] = res.Value.Number
		}
	}
	return out
}

// Failed returns the names whose read failed.
func (r Results) Failed() []string {
	var out []string
	for name, res := range r {
		if res.Err != nil {
			out = append(out, name)
		}
	}
	return out
}
