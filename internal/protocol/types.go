package protocol

import "fmt"

// Opcode identifies a frame's message kind.
type Opcode uint8

const (
	OpError     Opcode = 0
	OpInfo      Opcode = 1
	OpAuth      Opcode = 2
	OpPublish   Opcode = 3
	OpSubscribe Opcode = 9
)

// MaxFieldLen is the cap imposed by the single-byte length prefix.
const MaxFieldLen = 255

// DigestLen is the SHA-1 output size carried in AUTH.
const DigestLen = 20

func (o Opcode) String() string {
	switch o {
	case OpError:
		return "ERROR"
	case OpInfo:
		return "INFO"
	case OpAuth:
		return "AUTH"
	case OpPublish:
		return "PUBLISH"
	case OpSubscribe:
		return "SUBSCRIBE"
	default:
		return fmt.Sprintf("OP(%d)", uint8(o))
	}
}

// Message is one inbound message decoded from a frame.
type Message interface {
	Opcode() Opcode
}

// ErrorMsg is the broker's explicit failure report.
type ErrorMsg struct {
	Reason string
}

func (ErrorMsg) Opcode() Opcode { return OpError }

// InfoMsg is the broker's challenge: its name plus a nonce for the auth digest.
type InfoMsg struct {
	BrokerName string
	Nonce      []byte
}

func (InfoMsg) Opcode() Opcode { return OpInfo }

// HeaderLen is the fixed prefix: 4-byte total length plus 1-byte opcode.
const HeaderLen = 5

// Frame is one wire unit. Length counts the whole frame, header included.
type Frame struct {
	Length  uint32
	Opcode  Opcode
	Payload []byte
}
