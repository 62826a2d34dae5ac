package session

import (
	"time"

	"github.com/danmuck/hpfeeds/internal/protocol/frame"
)

// Config defines transport/session limits applied around the handshake and publishes.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	// WriteTimeout bounds each publish write; zero blocks until the transport drains.
	WriteTimeout time.Duration
	// RateLimitBytesPerSec throttles outbound bytes; zero disables throttling.
	RateLimitBytesPerSec int64
	// Limits caps inbound frames. Outbound publishes are bounded only by the u32 length field.
	Limits frame.Limits
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		Limits:           frame.DefaultLimits(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.RateLimitBytesPerSec < 0 {
		c.RateLimitBytesPerSec = 0
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits = def.Limits
	}
	return c
}
