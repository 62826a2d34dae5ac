package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch without string matching.
type Kind uint8

const (
	KindConnection Kind = iota + 1
	KindProtocol
	KindBroker
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindBroker:
		return "broker"
	case KindValidation:
		return "validation"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Kind sentinels. errors.Is(err, ErrBroker) matches any *Error of that kind.
var (
	ErrConnection = &Error{Kind: KindConnection}
	ErrProtocol   = &Error{Kind: KindProtocol}
	ErrBroker     = &Error{Kind: KindBroker}
	ErrValidation = &Error{Kind: KindValidation}
)

var (
	ErrUnknownOpcode = errors.New("protocol: unrecognized opcode")
	ErrInvalidLength = errors.New("protocol: invalid length-prefixed field")
	ErrFieldTooLong  = errors.New("protocol: field exceeds 255 bytes")
	ErrFirstNotInfo  = errors.New("protocol: first packet was not INFO")
)

// Error is the closed failure taxonomy surfaced by the client.
type Error struct {
	Kind Kind
	// Op names the step that failed, e.g. "dial", "read info", "publish".
	Op string
	// Reason carries the broker's text for KindBroker.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := "hpfeeds: " + e.Kind.String() + " error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Reason != "" {
		msg += ": " + fmt.Sprintf("%q", e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels, so wrapped leaf errors stay reachable through Unwrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

func ConnectionError(op string, err error) error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

func ProtocolError(op string, err error) error {
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

func BrokerError(op, reason string) error {
	return &Error{Kind: KindBroker, Op: op, Reason: reason}
}

func ValidationError(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// KindOf reports the taxonomy kind of err, or zero when err is outside it.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
