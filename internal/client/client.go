// Package client connects to an hpfeeds broker and publishes payloads.
//
// A Conn is created already authenticated; there is no background reader.
// Broker-side rejection of AUTH, a later ERROR frame, or a closed socket
// surface only as a failed Publish.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/hpfeeds/internal/observability"
	"github.com/danmuck/hpfeeds/internal/protocol"
	"github.com/danmuck/hpfeeds/internal/protocol/frame"
	"github.com/danmuck/hpfeeds/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrHostRequired  = errors.New("client: host required")
	ErrInvalidPort   = errors.New("client: invalid port")
	ErrIdentRequired = errors.New("client: ident required")
)

// Config is what a caller supplies to reach and authenticate with a broker.
type Config struct {
	Host    string
	Port    int
	Ident   string
	Secret  string
	Session session.Config
}

func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
	}
}

func (c Config) Address() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(c.Port))
}

// Validate rejects configs that could never complete a handshake.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return protocol.ValidationError("config", ErrHostRequired)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return protocol.ValidationError("config", fmt.Errorf("%w: %d", ErrInvalidPort, c.Port))
	}
	if c.Ident == "" {
		return protocol.ValidationError("config", ErrIdentRequired)
	}
	return protocol.ValidateField("ident", c.Ident)
}

// Conn is one authenticated broker connection. Publish may be called from
// multiple goroutines; writes are serialized so frames never interleave.
type Conn struct {
	id         string
	ident      string
	brokerName string
	cfg        session.Config
	conn       net.Conn
	w          io.Writer
	limiter    *throttle
	logger     zerolog.Logger

	mu     sync.Mutex
	state  session.State
	closed bool
}

// Connect dials the broker and completes the INFO/AUTH handshake.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		observability.RecordHandshake("", observability.ResultRejected, protocol.KindOf(err).String(), time.Since(start))
		return nil, err
	}
	cfg.Session = cfg.Session.WithDefaults()

	id := uuid.NewString()
	logger := log.With().
		Str("conn_id", id).
		Str("ident", cfg.Ident).
		Str("addr", cfg.Address()).
		Logger()

	hs := session.NewHandshake(cfg.Ident, cfg.Secret, cfg.Session.Limits)
	conn, err := dial(ctx, cfg)
	if err != nil {
		err = hs.Fail(protocol.ConnectionError("dial", err))
		logger.Warn().Err(err).Msg("client.Connect dial failed")
		observability.RecordHandshake("", observability.ResultError, protocol.KindConnection.String(), time.Since(start))
		return nil, err
	}

	if err := conn.SetDeadline(handshakeDeadline(ctx, cfg.Session.HandshakeTimeout)); err != nil {
		_ = conn.Close()
		return nil, hs.Fail(protocol.ConnectionError("set deadline", err))
	}
	if err := hs.Run(conn); err != nil {
		_ = conn.Close()
		logger.Warn().Err(err).Str("state", hs.State().String()).Msg("client.Connect handshake failed")
		observability.RecordHandshake(hs.BrokerName(), resultFor(err), protocol.KindOf(err).String(), time.Since(start))
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, protocol.ConnectionError("clear deadline", err)
	}

	logger = logger.With().Str("broker", hs.BrokerName()).Logger()
	logger.Info().Dur("elapsed", time.Since(start)).Msg("client.Connect ready")
	observability.RecordHandshake(hs.BrokerName(), observability.ResultOK, "", time.Since(start))

	return &Conn{
		id:         id,
		ident:      cfg.Ident,
		brokerName: hs.BrokerName(),
		cfg:        cfg.Session,
		conn:       conn,
		w:          conn,
		limiter:    newThrottle(cfg.Session.RateLimitBytesPerSec),
		logger:     logger,
		state:      hs.State(),
	}, nil
}

func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.Session.ConnectTimeout}
	return dialer.DialContext(ctx, "tcp", cfg.Address())
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}

func resultFor(err error) string {
	if protocol.KindOf(err) == protocol.KindBroker || protocol.KindOf(err) == protocol.KindValidation {
		return observability.ResultRejected
	}
	return observability.ResultError
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) Ident() string      { return c.ident }
func (c *Conn) BrokerName() string { return c.brokerName }

func (c *Conn) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Publish sends one PUBLISH frame. It does not wait for any broker response.
func (c *Conn) Publish(channel string, payload []byte) error {
	return c.PublishContext(context.Background(), channel, payload)
}

// PublishContext is Publish with the context deadline applied to the write.
func (c *Conn) PublishContext(ctx context.Context, channel string, payload []byte) error {
	body, err := protocol.EncodePublish(c.ident, channel, payload)
	if err != nil {
		observability.RecordPublish(channel, observability.ResultRejected, 0)
		return err
	}
	if err := ctx.Err(); err != nil {
		return protocol.ConnectionError("publish", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return protocol.ConnectionError("publish", net.ErrClosed)
	}
	deadline := c.writeDeadline(ctx)
	if err := c.limiter.wait(ctx, protocol.HeaderLen+len(body), deadline); err != nil {
		observability.RecordPublish(channel, observability.ResultError, 0)
		return protocol.ConnectionError("publish", err)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return protocol.ConnectionError("publish", err)
	}
	// Session limits cap inbound frames only; outbound size is bounded by the u32 length.
	n, err := frame.WriteFrame(c.w, protocol.OpPublish, body, frame.Limits{})
	if err != nil {
		if protocol.KindOf(err) == protocol.KindValidation {
			observability.RecordPublish(channel, observability.ResultRejected, 0)
			return err
		}
		c.state = session.StateFailed
		observability.RecordPublish(channel, observability.ResultError, n)
		c.logger.Warn().Err(err).Str("channel", channel).Int("written", n).Msg("client.Conn publish failed")
		return protocol.ConnectionError("publish", err)
	}
	observability.RecordPublish(channel, observability.ResultOK, n)
	c.logger.Debug().Str("channel", channel).Int("bytes", n).Msg("client.Conn sent publish")
	return nil
}

func (c *Conn) writeDeadline(ctx context.Context) time.Time {
	var deadline time.Time
	if c.cfg.WriteTimeout > 0 {
		deadline = time.Now().Add(c.cfg.WriteTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Debug().Msg("client.Conn closed")
	return c.conn.Close()
}
