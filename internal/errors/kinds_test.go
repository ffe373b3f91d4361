package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("foo"), ErrNotFound},
		{"out of range", OutOfRange("value %d exceeds mask %d", 40, 31), ErrValueOutOfRange},
		{"wrapped channel", Wrap(KindChannel, "read_words", fmt.Errorf("EOF")), ErrChannel},
		{"timeout", New(KindTimeout, "write_word", "deadline exceeded"), ErrTimeout},
		{"fmt wrapped", fmt.Errorf("outer: %w", New(KindNotWritable, "write", "read-only")), ErrNotWritable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.want)
			}
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
			for _, other := range []Kind{ErrNotFound, ErrNotWritable, ErrValueOutOfRange, ErrChannel, ErrTimeout} {
				if other != tt.want && errors.Is(tt.err, other) {
					t.Errorf("errors.Is(%v, %v) = true, want false", tt.err, other)
				}
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(KindChannel, "x", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if WithSignal(nil, "read", "foo", 1) != nil {
		t.Error("WithSignal(nil) should be nil")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("KindOf(nil) should be unknown")
	}
	if KindOf(fmt.Errorf("plain")) != KindUnknown {
		t.Error("KindOf(plain) should be unknown")
	}
}

func TestWithSignal(t *testing.T) {
	base := New(KindTimeout, "read_words", "no response")
	err := WithSignal(base, "read", "indoor_current_temperature", 70)

	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if se.Signal != "indoor_current_temperature" || se.Address != 70 || se.Op != "read" {
		t.Errorf("annotation lost: %+v", se)
	}
	if base.Signal != "" {
		t.Error("WithSignal must not mutate the original error")
	}
	msg := err.Error()
	for _, want := range []string{"timeout", "read", "indoor_current_temperature", "@70", "no response"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want to contain %q", msg, want)
		}
	}

	plain := WithSignal(fmt.Errorf("broken pipe"), "write", "x", 3)
	if !errors.Is(plain, ErrChannel) {
		t.Errorf("unclassified errors should become channel errors, got %v", plain)
	}
}
