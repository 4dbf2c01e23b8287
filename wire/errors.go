package wire

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind uint8

// Error kinds.
const (
	KindCustom Kind = iota
	KindInvalidSenderID
	KindInvalidLength
	KindMalformedPayload
	KindUnknownOpcode
	KindMissingObject
	KindMissingFD
	KindIO
	KindXdg
	KindConnectionDropped
	KindDuplicateObject
	KindIDExhausted
)

// Error is the single error type returned by the codec, the transport and the
// object machinery built on top of them. N carries the numeric context of the
// failing condition: a length, an opcode or an object id.
type Error struct {
	Kind Kind
	N    uint32
	Text string
	Err  error
}

// Sentinels matched with errors.Is. A sentinel matches every Error of its kind
// regardless of the numeric context.
var (
	ErrInvalidSenderID   = &Error{Kind: KindInvalidSenderID}
	ErrInvalidLength     = &Error{Kind: KindInvalidLength}
	ErrMalformedPayload  = &Error{Kind: KindMalformedPayload}
	ErrUnknownOpcode     = &Error{Kind: KindUnknownOpcode}
	ErrMissingObject     = &Error{Kind: KindMissingObject}
	ErrMissingFD         = &Error{Kind: KindMissingFD}
	ErrIO                = &Error{Kind: KindIO}
	ErrXdg               = &Error{Kind: KindXdg}
	ErrConnectionDropped = &Error{Kind: KindConnectionDropped}
	ErrDuplicateObject   = &Error{Kind: KindDuplicateObject}
	ErrIDExhausted       = &Error{Kind: KindIDExhausted}
	ErrCustom            = &Error{Kind: KindCustom}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidSenderID:
		return "wayland: invalid sender id 0"
	case KindInvalidLength:
		return fmt.Sprintf("wayland: invalid message length %d", e.N)
	case KindMalformedPayload:
		if e.Text != "" {
			return "wayland: malformed payload: " + e.Text
		}
		return "wayland: malformed payload"
	case KindUnknownOpcode:
		return fmt.Sprintf("wayland: unknown opcode %d", e.N)
	case KindMissingObject:
		return fmt.Sprintf("wayland: missing object %d", e.N)
	case KindMissingFD:
		return "wayland: missing file descriptor"
	case KindIO:
		if e.Err != nil {
			return "wayland: i/o: " + e.Err.Error()
		}
		return "wayland: i/o error"
	case KindXdg:
		if e.Text != "" {
			return "wayland: runtime directory: " + e.Text
		}
		return "wayland: runtime directory unavailable"
	case KindConnectionDropped:
		return "wayland: connection dropped"
	case KindDuplicateObject:
		return fmt.Sprintf("wayland: object %d already exists", e.N)
	case KindIDExhausted:
		return "wayland: object id range exhausted"
	default:
		if e.Text != "" {
			return "wayland: " + e.Text
		}
		return "wayland: error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same kind. A missing file
// descriptor also counts as a malformed payload.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == KindMalformedPayload && e.Kind == KindMissingFD {
		return true
	}
	return t.Kind == e.Kind && (t.N == 0 || t.N == e.N)
}

// InvalidLength reports a header declaring an unusable message length.
func InvalidLength(n int) error {
	return &Error{Kind: KindInvalidLength, N: uint32(n)}
}

// Malformed reports a payload that does not match its signature.
func Malformed(format string, args ...any) error {
	return &Error{Kind: KindMalformedPayload, Text: fmt.Sprintf(format, args...)}
}

// UnknownOpcode reports an opcode outside an interface's table.
func UnknownOpcode(op uint16) error {
	return &Error{Kind: KindUnknownOpcode, N: uint32(op)}
}

// MissingObject reports a message addressed to an object that is not live.
func MissingObject(id ObjectID) error {
	return &Error{Kind: KindMissingObject, N: uint32(id)}
}

// DuplicateObject reports an attempt to reuse a live object id.
func DuplicateObject(id ObjectID) error {
	return &Error{Kind: KindDuplicateObject, N: uint32(id)}
}

// Xdg reports a missing or unusable runtime directory.
func Xdg(format string, args ...any) error {
	return &Error{Kind: KindXdg, Text: fmt.Sprintf(format, args...)}
}

// Errorf returns a host-defined error.
func Errorf(format string, args ...any) error {
	return &Error{Kind: KindCustom, Text: fmt.Sprintf(format, args...)}
}

// IOError wraps err into an Error of kind KindIO. Errors that already are an
// *Error are returned unchanged.
func IOError(err error) error {
	if err == nil {
		return nil
	}
	var we *Error
	if errors.As(err, &we) {
		return err
	}
	return &Error{Kind: KindIO, Err: err}
}

// IsProtocolError reports whether err means the peer broke the wire contract.
func IsProtocolError(err error) bool {
	var we *Error
	if !errors.As(err, &we) {
		return false
	}
	switch we.Kind {
	case KindInvalidSenderID, KindInvalidLength, KindMalformedPayload,
		KindMissingFD, KindUnknownOpcode, KindDuplicateObject:
		return true
	}
	return false
}
