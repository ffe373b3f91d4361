package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserFriendlyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      UserFriendlyError
		contains []string
	}{
		{
			name:     "message only",
			err:      UserFriendlyError{Message: "something broke"},
			contains: []string{"something broke"},
		},
		{
			name: "all fields",
			err: UserFriendlyError{
				Message: "connection failed",
				Reason:  "timeout",
				Hint:    "check network",
				Try:     "ping host",
				Err:     fmt.Errorf("dial tcp: timeout"),
			},
			contains: []string{"connection failed", "Reason: timeout", "Hint: check network", "Try: ping host", "Details: dial tcp: timeout"},
		},
		{
			name: "no reason",
			err: UserFriendlyError{
				Message: "failed",
				Hint:    "hint here",
			},
			contains: []string{"failed", "Hint: hint here"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want to contain %q", msg, s)
				}
			}
		})
	}
}

func TestUserFriendlyError_ErrorOmitsEmptyFields(t *testing.T) {
	err := UserFriendlyError{Message: "msg"}
	msg := err.Error()
	if strings.Contains(msg, "Reason:") || strings.Contains(msg, "Hint:") || strings.Contains(msg, "Try:") || strings.Contains(msg, "Details:") {
		t.Errorf("Error() = %q, should not contain empty fields", msg)
	}
}

func TestUserFriendlyError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("root cause")
	err := UserFriendlyError{Message: "wrapper", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap should return the inner error")
	}

	var nilErr UserFriendlyError
	if nilErr.Unwrap() != nil {
		t.Error("Unwrap on nil Err should return nil")
	}
}

func TestWrapDeviceError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapDeviceError(nil, "10.0.0.1", 502) != nil {
			t.Error("expected nil")
		}
	})

	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"timeout error", fmt.Errorf("read tcp: i/o timeout"), "timeout"},
		{"connection refused", fmt.Errorf("connection refused"), "refused"},
		{"no route to host", fmt.Errorf("no route to host"), "route"},
		{"connection reset", fmt.Errorf("connection reset by peer"), "reset"},
		{"unexpected EOF", fmt.Errorf("unexpected EOF"), "reset"},
		{"modbus exception", fmt.Errorf("modbus: exception '2' (illegal data address)"), "exception"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ufe := WrapDeviceError(tt.err, "10.0.0.1", 502).(UserFriendlyError)
			if !strings.Contains(ufe.Message, "10.0.0.1:502") {
				t.Errorf("message should contain address, got %q", ufe.Message)
			}
			if !strings.Contains(ufe.Reason, tt.reason) {
				t.Errorf("reason = %q, want to contain %q", ufe.Reason, tt.reason)
			}
		})
	}

	t.Run("generic error", func(t *testing.T) {
		ufe := WrapDeviceError(fmt.Errorf("something else"), "10.0.0.1", 502).(UserFriendlyError)
		if ufe.Reason != "Register channel communication failed" {
			t.Errorf("unexpected reason: %q", ufe.Reason)
		}
	})
}

func TestWrapSignalError(t *testing.T) {
	if WrapSignalError(nil, "x") != nil {
		t.Fatal("expected nil")
	}

	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"not found", NotFound("nope"), "No signal"},
		{"not writable", New(KindNotWritable, "write", "read-only"), "read-only"},
		{"out of range", OutOfRange("40 > 31"), "cannot be encoded"},
		{"timeout", New(KindTimeout, "read_words", "deadline"), "did not respond"},
		{"channel", Wrap(KindChannel, "read_words", fmt.Errorf("connection refused")), "refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapSignalError(tt.err, "nope")
			ufe := err.(UserFriendlyError)
			if !strings.Contains(ufe.Reason, tt.reason) {
				t.Errorf("reason = %q, want to contain %q", ufe.Reason, tt.reason)
			}
			if !errors.Is(err, KindOf(tt.err)) {
				t.Errorf("wrapped error lost its kind %v", KindOf(tt.err))
			}
		})
	}
}

func TestWrapConfigError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapConfigError(nil, "config.yaml") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("wraps config error", func(t *testing.T) {
		err := WrapConfigError(fmt.Errorf("invalid yaml"), "farmreg.yaml")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "farmreg.yaml") {
			t.Errorf("message should contain config path, got %q", ufe.Message)
		}
		if ufe.Reason != "invalid yaml" {
			t.Errorf("reason should be inner error message, got %q", ufe.Reason)
		}
		if !strings.Contains(ufe.Hint, "print-default") {
			t.Errorf("hint should reference default config, got %q", ufe.Hint)
		}
	})
}
