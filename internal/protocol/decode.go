package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Parse interprets a frame's payload according to its opcode.
func Parse(f Frame) (Message, error) {
	switch f.Opcode {
	case OpError:
		return ErrorMsg{Reason: lossyString(f.Payload)}, nil
	case OpInfo:
		return ParseInfo(f.Payload)
	default:
		return nil, ProtocolError("parse", fmt.Errorf("%w: %d", ErrUnknownOpcode, uint8(f.Opcode)))
	}
}

// ParseInfo decodes `n:u8 || name[n] || nonce...`.
func ParseInfo(payload []byte) (InfoMsg, error) {
	if len(payload) < 1 {
		return InfoMsg{}, ProtocolError("parse info", fmt.Errorf("%w: missing broker name length", ErrInvalidLength))
	}
	n := int(payload[0])
	if n > len(payload)-1 {
		return InfoMsg{}, ProtocolError("parse info", fmt.Errorf(
			"%w: broker name length=%d remaining=%d", ErrInvalidLength, n, len(payload)-1,
		))
	}
	nonce := make([]byte, len(payload)-1-n)
	copy(nonce, payload[1+n:])
	return InfoMsg{
		BrokerName: lossyString(payload[1 : 1+n]),
		Nonce:      nonce,
	}, nil
}

// lossyString replaces each maximal ill-formed subsequence with one U+FFFD.
func lossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			sb.WriteRune(utf8.RuneError)
			b = b[invalidPrefixLen(b):]
			continue
		}
		sb.Write(b[:size])
		b = b[size:]
	}
	return sb.String()
}

// invalidPrefixLen reports how many bytes of an ill-formed sequence at the
// front of b form a valid prefix of some encoding, at least one.
func invalidPrefixLen(b []byte) int {
	lo, hi := byte(0x80), byte(0xbf)
	var need int
	switch lead := b[0]; {
	case lead >= 0xc2 && lead <= 0xdf:
		need = 1
	case lead == 0xe0:
		need, lo = 2, 0xa0
	case lead == 0xed:
		need, hi = 2, 0x9f
	case lead >= 0xe1 && lead <= 0xef:
		need = 2
	case lead == 0xf0:
		need, lo = 3, 0x90
	case lead >= 0xf1 && lead <= 0xf3:
		need = 3
	case lead == 0xf4:
		need, hi = 3, 0x8f
	default:
		return 1
	}
	n := 1
	for n <= need && n < len(b) && b[n] >= lo && b[n] <= hi {
		lo, hi = 0x80, 0xbf
		n++
	}
	return n
}
