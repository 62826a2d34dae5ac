package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/danmuck/hpfeeds/internal/protocol"
)

const lengthFieldLen = 4

var (
	ErrShortFrame      = errors.New("frame: buffer shorter than header")
	ErrLengthTooSmall  = errors.New("frame: declared length smaller than header")
	ErrTruncated       = errors.New("frame: buffer shorter than declared length")
	ErrFrameTooLarge   = errors.New("frame: frame too large")
	ErrPayloadTooLarge = errors.New("frame: payload does not fit u32 length")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 1024 * 1024,
	}
}

func (l Limits) allows(n uint64) bool {
	return l.MaxFrameBytes == 0 || n <= uint64(l.MaxFrameBytes)
}

// Encode produces BE32(5+len(payload)) || opcode || payload.
func Encode(op protocol.Opcode, payload []byte) ([]byte, error) {
	return EncodeWithLimits(op, payload, Limits{})
}

func EncodeWithLimits(op protocol.Opcode, payload []byte, limits Limits) ([]byte, error) {
	total := uint64(protocol.HeaderLen) + uint64(len(payload))
	if total > math.MaxUint32 {
		return nil, protocol.ValidationError("encode frame", fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload)))
	}
	if !limits.allows(total) {
		return nil, protocol.ValidationError("encode frame", fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, total, limits.MaxFrameBytes))
	}
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	buf[4] = byte(op)
	copy(buf[protocol.HeaderLen:], payload)
	return buf, nil
}

// Decode reads one frame from the front of buf. Bytes past the declared
// length are left for the caller; buf may hold several pipelined frames.
func Decode(buf []byte) (protocol.Frame, error) {
	if len(buf) < protocol.HeaderLen {
		return protocol.Frame{}, protocol.ProtocolError("decode frame", fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf)))
	}
	length := binary.BigEndian.Uint32(buf[0:4])
	if length < protocol.HeaderLen {
		return protocol.Frame{}, protocol.ProtocolError("decode frame", fmt.Errorf("%w: %d", ErrLengthTooSmall, length))
	}
	if uint64(len(buf)) < uint64(length) {
		return protocol.Frame{}, protocol.ProtocolError("decode frame", fmt.Errorf("%w: have=%d want=%d", ErrTruncated, len(buf), length))
	}
	payload := make([]byte, int(length)-protocol.HeaderLen)
	copy(payload, buf[protocol.HeaderLen:length])
	return protocol.Frame{
		Length:  length,
		Opcode:  protocol.Opcode(buf[4]),
		Payload: payload,
	}, nil
}

// WriteFrame encodes and emits the frame in a single Write call so callers
// holding a writer lock never split a frame.
func WriteFrame(w io.Writer, op protocol.Opcode, payload []byte, limits Limits) (int, error) {
	buf, err := EncodeWithLimits(op, payload, limits)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
