package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/hpfeeds/internal/protocol"
	"github.com/danmuck/hpfeeds/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// State is a handshake phase.
type State uint8

const (
	StateConnecting State = iota
	StateAwaitingInfo
	StateAuthenticating
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingInfo:
		return "awaiting_info"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var ErrInvalidTransition = errors.New("session: invalid handshake transition")

// Handshake drives Connecting -> AwaitingInfo -> Authenticating -> Ready.
// Any failure parks it in Failed; it is not restartable.
type Handshake struct {
	ident  string
	secret string
	limits frame.Limits

	state      State
	brokerName string
	nonce      []byte
	err        error
}

func NewHandshake(ident, secret string, limits frame.Limits) *Handshake {
	return &Handshake{
		ident:  ident,
		secret: secret,
		limits: limits,
		state:  StateConnecting,
	}
}

func (h *Handshake) State() State       { return h.state }
func (h *Handshake) BrokerName() string { return h.brokerName }
func (h *Handshake) Err() error         { return h.err }

func (h *Handshake) Nonce() []byte {
	out := make([]byte, len(h.nonce))
	copy(out, h.nonce)
	return out
}

// Fail moves the handshake to Failed, e.g. when the transport could not be opened.
func (h *Handshake) Fail(err error) error {
	h.state = StateFailed
	h.err = err
	log.Debug().Err(err).Str("ident", h.ident).Msg("session.Handshake failed")
	return err
}

// Run completes the exchange over an open transport: one frame read, one AUTH write.
func (h *Handshake) Run(rw io.ReadWriter) error {
	if h.state != StateConnecting {
		return fmt.Errorf("%w: run from %s", ErrInvalidTransition, h.state)
	}
	h.state = StateAwaitingInfo

	info, err := h.awaitInfo(frame.NewReader(rw, h.limits))
	if err != nil {
		return h.Fail(err)
	}
	h.brokerName = info.BrokerName
	h.nonce = info.Nonce
	h.state = StateAuthenticating
	log.Debug().
		Str("broker", h.brokerName).
		Int("nonce_len", len(h.nonce)).
		Msg("session.Handshake received info")

	if err := h.authenticate(rw); err != nil {
		return h.Fail(err)
	}
	h.state = StateReady
	log.Info().Str("broker", h.brokerName).Str("ident", h.ident).Msg("session.Handshake sent auth")
	return nil
}

func (h *Handshake) awaitInfo(r *frame.Reader) (protocol.InfoMsg, error) {
	f, err := r.ReadFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return protocol.InfoMsg{}, protocol.ConnectionError("read info", io.ErrUnexpectedEOF)
		}
		if errors.Is(err, protocol.ErrConnection) {
			return protocol.InfoMsg{}, err
		}
		return protocol.InfoMsg{}, protocol.ProtocolError("read info", fmt.Errorf("%w: %w", protocol.ErrFirstNotInfo, err))
	}
	msg, err := protocol.Parse(f)
	if err != nil {
		return protocol.InfoMsg{}, protocol.ProtocolError("read info", fmt.Errorf("%w: %w", protocol.ErrFirstNotInfo, err))
	}
	switch m := msg.(type) {
	case protocol.InfoMsg:
		return m, nil
	case protocol.ErrorMsg:
		return protocol.InfoMsg{}, protocol.BrokerError("read info", m.Reason)
	default:
		return protocol.InfoMsg{}, protocol.ProtocolError("read info", fmt.Errorf("%w: got %s", protocol.ErrFirstNotInfo, msg.Opcode()))
	}
}

func (h *Handshake) authenticate(w io.Writer) error {
	payload, err := protocol.EncodeAuth(h.ident, h.nonce, h.secret)
	if err != nil {
		return err
	}
	if _, err := frame.WriteFrame(w, protocol.OpAuth, payload, h.limits); err != nil {
		if protocol.KindOf(err) != 0 {
			return err
		}
		return protocol.ConnectionError("write auth", err)
	}
	return nil
}
