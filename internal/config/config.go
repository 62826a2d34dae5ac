package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/hpfeeds/internal/client"
	"github.com/danmuck/hpfeeds/internal/logging"
	"github.com/danmuck/hpfeeds/internal/protocol"
	"gopkg.in/yaml.v3"
)

// PublisherConfig is everything the publisher CLI needs from a file.
type PublisherConfig struct {
	Client      client.Config
	Channel     string
	LogLevel    string
	LogFile     string
	MetricsAddr string
}

type fileConfig struct {
	Host             string `toml:"host" yaml:"host"`
	Port             int    `toml:"port" yaml:"port"`
	Ident            string `toml:"ident" yaml:"ident"`
	Secret           string `toml:"secret" yaml:"secret"`
	Channel          string `toml:"channel" yaml:"channel"`
	ConnectTimeout   string `toml:"connect_timeout" yaml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout     string `toml:"write_timeout" yaml:"write_timeout"`
	RateLimitBPS     int64  `toml:"rate_limit_bps" yaml:"rate_limit_bps"`
	MaxFrameBytes    uint32 `toml:"max_frame_bytes" yaml:"max_frame_bytes"`
	LogLevel         string `toml:"log_level" yaml:"log_level"`
	LogFile          string `toml:"log_file" yaml:"log_file"`
	MetricsAddr      string `toml:"metrics_addr" yaml:"metrics_addr"`
}

func Default() PublisherConfig {
	return PublisherConfig{
		Client:   client.DefaultConfig(),
		LogLevel: "info",
	}
}

// Load reads a TOML or YAML publisher config, chosen by file extension.
func Load(path string) (PublisherConfig, error) {
	var (
		raw     fileConfig
		defined func(string) bool
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		defined, err = decodeTOML(path, &raw)
	case ".yaml", ".yml":
		defined, err = decodeYAML(path, &raw)
	default:
		return PublisherConfig{}, fmt.Errorf("config load failed (%s): unsupported extension", path)
	}
	if err != nil {
		return PublisherConfig{}, err
	}

	cfg, err := apply(Default(), raw, defined)
	if err != nil {
		return PublisherConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return PublisherConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func decodeTOML(path string, raw *fileConfig) (func(string) bool, error) {
	meta, err := toml.DecodeFile(path, raw)
	if err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return func(key string) bool { return meta.IsDefined(key) }, nil
}

func decodeYAML(path string, raw *fileConfig) (func(string) bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	keys := map[string]any{}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return func(key string) bool {
		_, ok := keys[key]
		return ok
	}, nil
}

func apply(cfg PublisherConfig, raw fileConfig, defined func(string) bool) (PublisherConfig, error) {
	if defined("host") {
		cfg.Client.Host = strings.TrimSpace(raw.Host)
	}
	if defined("port") {
		cfg.Client.Port = raw.Port
	}
	if defined("ident") {
		cfg.Client.Ident = raw.Ident
	}
	if defined("secret") {
		cfg.Client.Secret = raw.Secret
	}
	if defined("channel") {
		cfg.Channel = raw.Channel
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Client.Session.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Client.Session.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Client.Session.WriteTimeout},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return PublisherConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if defined("rate_limit_bps") {
		cfg.Client.Session.RateLimitBytesPerSec = raw.RateLimitBPS
	}
	if defined("max_frame_bytes") {
		cfg.Client.Session.Limits.MaxFrameBytes = raw.MaxFrameBytes
	}
	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if defined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if defined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	return cfg, nil
}

// Validate checks fields a file can get wrong beyond what client.Config.Validate covers.
func Validate(cfg PublisherConfig) error {
	if err := cfg.Client.Validate(); err != nil {
		return err
	}
	if err := protocol.ValidateField("channel", cfg.Channel); err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
		}
	}
	if cfg.Client.Session.ConnectTimeout < 0 || cfg.Client.Session.HandshakeTimeout < 0 || cfg.Client.Session.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if cfg.Client.Session.RateLimitBytesPerSec < 0 {
		return fmt.Errorf("rate_limit_bps must not be negative")
	}
	return nil
}
