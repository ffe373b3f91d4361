package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapDeviceError wraps register channel failures with the controller address.
func WrapDeviceError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with controller at %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "The controller or its Modbus/TCP gateway may be offline, or the WAN link may be down",
		Try:     fmt.Sprintf("farmreg raw read 0 --host %s --port %d", host, port),
		Err:     err,
	}
}

// WrapSignalError explains a classified signal failure for the named signal.
func WrapSignalError(err error, name string) error {
	if err == nil {
		return nil
	}

	ufe := UserFriendlyError{
		Message: fmt.Sprintf("Signal operation failed: %s", name),
		Err:     err,
	}
	switch KindOf(err) {
	case KindNotFound:
		ufe.Reason = "No signal with this name exists in the catalog"
		ufe.Hint = "Signal names are case-sensitive English keys"
		ufe.Try = fmt.Sprintf("farmreg catalog list --search %s", name)
	case KindNotWritable:
		ufe.Reason = "The signal is read-only"
		ufe.Hint = "Only settings (registers, bits and bit ranges with write access) can be written"
		ufe.Try = fmt.Sprintf("farmreg catalog show %s", name)
	case KindValueOutOfRange:
		ufe.Reason = "The value cannot be encoded into the signal's register field"
		ufe.Hint = "Bits accept 0 or 1; bit ranges accept integers up to their mask; registers are limited to 16 bits after scaling"
		ufe.Try = fmt.Sprintf("farmreg catalog show %s", name)
	case KindTimeout:
		ufe.Reason = "Controller did not respond within the configured timeout"
		ufe.Hint = "Increase device.timeout_ms for slow WAN links"
	case KindChannel:
		ufe.Reason = extractNetworkReason(err)
		ufe.Hint = "Nothing was retried at the signal layer; re-read the signal to confirm the controller state"
	default:
		ufe.Reason = "Unexpected failure"
	}
	return ufe
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Compare with the output of 'farmreg config print-default'",
		Try:     fmt.Sprintf("farmreg config validate --config %s", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - controller may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - gateway may not be listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or controller unreachable"
	}
	if strings.Contains(errStr, "connection reset") || strings.Contains(errStr, "EOF") {
		return "Connection reset - gateway closed the connection unexpectedly"
	}
	if strings.Contains(errStr, "exception") {
		return "Controller rejected the request with a Modbus exception"
	}

	return "Register channel communication failed"
}
