package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/danmuck/hpfeeds/internal/client"
	"github.com/danmuck/hpfeeds/internal/config"
	"github.com/danmuck/hpfeeds/internal/logging"
	"github.com/danmuck/hpfeeds/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type publishFlags struct {
	configPath  string
	host        string
	port        int
	ident       string
	secret      string
	channel     string
	lines       bool
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hpfeeds-pub",
		Short:         "Publish payloads to an hpfeeds broker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newPublishCmd(), newConfigCmd())
	return root
}

func newPublishCmd() *cobra.Command {
	var f publishFlags
	cmd := &cobra.Command{
		Use:   "publish [payload...]",
		Short: "Connect, authenticate, and publish to one channel",
		Long: `Publishes the joined arguments as one payload. With no arguments the
payload is read from stdin; --lines publishes each stdin line separately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolvePublishConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runPublish(ctx, cfg, f.lines, args, cmd.InOrStdin())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "publisher config file (.toml, .yaml)")
	flags.StringVar(&f.host, "host", "", "broker host")
	flags.IntVar(&f.port, "port", 0, "broker port")
	flags.StringVar(&f.ident, "ident", "", "client identity")
	flags.StringVar(&f.secret, "secret", "", "shared secret for the identity")
	flags.StringVar(&f.channel, "channel", "", "destination channel")
	flags.BoolVar(&f.lines, "lines", false, "publish each stdin line as its own payload")
	flags.StringVar(&f.logLevel, "log-level", "", "trace|debug|info|warn|error|off")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while publishing")
	return cmd
}

func resolvePublishConfig(cmd *cobra.Command, f publishFlags) (config.PublisherConfig, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.PublisherConfig{}, err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Client.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Client.Port = f.port
	}
	if flags.Changed("ident") {
		cfg.Client.Ident = f.ident
	}
	if flags.Changed("secret") {
		cfg.Client.Secret = f.secret
	}
	if flags.Changed("channel") {
		cfg.Channel = f.channel
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if strings.TrimSpace(cfg.Channel) == "" {
		return config.PublisherConfig{}, fmt.Errorf("channel required")
	}
	if err := config.Validate(cfg); err != nil {
		return config.PublisherConfig{}, err
	}
	return cfg, nil
}

func runPublish(ctx context.Context, cfg config.PublisherConfig, lines bool, args []string, stdin io.Reader) error {
	logCfg := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logCfg.Level = lvl
	}
	logCfg.File = cfg.LogFile
	logging.ConfigureWith(logCfg)

	if cfg.MetricsAddr != "" {
		srv, err := observability.StartMetricsServer(cfg.MetricsAddr, log.Logger)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	conn, err := client.Connect(ctx, cfg.Client)
	if err != nil {
		return err
	}
	defer conn.Close()

	if len(args) > 0 {
		return conn.PublishContext(ctx, cfg.Channel, []byte(strings.Join(args, " ")))
	}
	if !lines {
		payload, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		return conn.PublishContext(ctx, cfg.Channel, payload)
	}

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), int(cfg.Client.Session.WithDefaults().Limits.MaxFrameBytes))
	count := 0
	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		if err := conn.PublishContext(ctx, cfg.Channel, line); err != nil {
			return fmt.Errorf("publish line %d: %w", count+1, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	log.Info().Str("channel", cfg.Channel).Int("published", count).Str("broker", conn.BrokerName()).Msg("hpfeeds-pub done")
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate publisher config files",
	}

	var format string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init PATH",
		Short: "Write a config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], format, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", format, args[0])
			return nil
		},
	}
	initCmd.Flags().StringVar(&format, "format", "toml", "toml|yaml")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate PATH",
		Short: "Load and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s (broker %s, ident %q)\n", args[0], cfg.Client.Address(), cfg.Client.Ident)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
