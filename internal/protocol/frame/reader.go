package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/hpfeeds/internal/protocol"
)

const readChunk = 4096

// Reader reassembles frames from a byte stream. One underlying Read may
// carry a partial frame or several frames; leftover bytes are kept for the
// next ReadFrame call.
type Reader struct {
	r      io.Reader
	limits Limits
	buf    []byte
	chunk  []byte
	err    error
}

func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{
		r:      r,
		limits: limits,
		chunk:  make([]byte, readChunk),
	}
}

// Buffered reports bytes received but not yet returned as a frame.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// ReadFrame blocks until one complete frame is available.
// A clean close between frames returns io.EOF unwrapped.
func (r *Reader) ReadFrame() (protocol.Frame, error) {
	for {
		f, ok, err := r.next()
		if err != nil {
			return protocol.Frame{}, err
		}
		if ok {
			return f, nil
		}
		if r.err != nil {
			return protocol.Frame{}, r.fail()
		}
		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
		}
		if err != nil {
			r.err = err
		}
	}
}

// next pops a frame off the buffer when a whole one is present.
func (r *Reader) next() (protocol.Frame, bool, error) {
	if len(r.buf) < lengthFieldLen {
		return protocol.Frame{}, false, nil
	}
	length := binary.BigEndian.Uint32(r.buf[0:lengthFieldLen])
	if length < protocol.HeaderLen {
		return protocol.Frame{}, false, protocol.ProtocolError("read frame", fmt.Errorf("%w: %d", ErrLengthTooSmall, length))
	}
	if !r.limits.allows(uint64(length)) {
		return protocol.Frame{}, false, protocol.ProtocolError("read frame", fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, r.limits.MaxFrameBytes))
	}
	if uint64(len(r.buf)) < uint64(length) {
		return protocol.Frame{}, false, nil
	}
	f, err := Decode(r.buf[:length])
	if err != nil {
		return protocol.Frame{}, false, err
	}
	r.buf = append(r.buf[:0], r.buf[length:]...)
	return f, true, nil
}

func (r *Reader) fail() error {
	if errors.Is(r.err, io.EOF) {
		if len(r.buf) == 0 {
			return io.EOF
		}
		return protocol.ProtocolError("read frame", fmt.Errorf("%w: %d bytes buffered", io.ErrUnexpectedEOF, len(r.buf)))
	}
	return protocol.ConnectionError("read frame", r.err)
}
