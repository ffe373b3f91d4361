package errors

// Failure taxonomy for the signal layer.
//
// Every failure produced by the catalog, codec, channel or dispatcher carries
// exactly one Kind. Callers test for it with errors.Is against the Kind
// sentinels below, e.g. errors.Is(err, ErrTimeout).

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind identifies the class of a signal-layer failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindNotWritable
	KindValueOutOfRange
	KindChannel
	KindTimeout
)

// Sentinels usable with errors.Is.
const (
	ErrNotFound        = KindNotFound
	ErrNotWritable     = KindNotWritable
	ErrValueOutOfRange = KindValueOutOfRange
	ErrChannel         = KindChannel
	ErrTimeout         = KindTimeout
)

// Error makes a Kind usable as a sentinel error value.
func (k Kind) Error() string {
	return k.String()
}

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNotWritable:
		return "not_writable"
	case KindValueOutOfRange:
		return "value_out_of_range"
	case KindChannel:
		return "channel_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// NoAddress marks an Error that is not tied to a register address.
const NoAddress = -1

// Error is a classified signal-layer failure.
type Error struct {
	Kind    Kind
	Op      string // read, write, read_words, write_word, encode, ...
	Signal  string // empty for raw register access
	Address int    // NoAddress when not applicable
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Kind.String())
	if e.Op != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Op)
	}
	if e.Signal != "" {
		fmt.Fprintf(&buf, " %q", e.Signal)
	}
	if e.Address != NoAddress {
		fmt.Fprintf(&buf, " @%d", e.Address)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind sentinel of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New builds a classified error with a formatted message.
func New(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Address: NoAddress, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Address: NoAddress, Err: err}
}

// WithSignal returns a copy of err annotated with the signal name and
// address. Errors that are not *Error are classified as channel errors.
func WithSignal(err error, op, signal string, address uint16) error {
	if err == nil {
		return nil
	}
	var se *Error
	if stderrors.As(err, &se) {
		cp := *se
		if op != "" {
			cp.Op = op
		}
		cp.Signal = signal
		cp.Address = int(address)
		return &cp
	}
	return &Error{Kind: KindChannel, Op: op, Signal: signal, Address: int(address), Err: err}
}

// NotFound reports an unknown signal name.
func NotFound(name string) error {
	return &Error{Kind: KindNotFound, Op: "lookup", Signal: name, Address: NoAddress, Msg: "unknown signal"}
}

// OutOfRange reports a value that cannot be encoded.
func OutOfRange(format string, args ...any) *Error {
	return New(KindValueOutOfRange, "encode", format, args...)
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if stderrors.As(err, &se) {
		return se.Kind
	}
	var k Kind
	if stderrors.As(err, &k) {
		return k
	}
	return KindUnknown
}
