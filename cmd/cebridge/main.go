// Package main provides the cebridge CLI, which receives CloudEvents on one
// transport and forwards them on another.
//
// Usage:
//
//	cebridge serve --receiver ce-http-binary --emitter google-pubsub --topic events
//
// Every flag falls back to its environment variable (PORT, CE_RECEIVER,
// CE_EMITTER, K_SINK, CE_GPUBSUB_TOPIC, LOG_LEVEL, KUBE_EVENTS).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/fraser-isbester/cebridge/internal/config"
	"github.com/fraser-isbester/cebridge/internal/logging"
	"github.com/fraser-isbester/cebridge/internal/metrics"
	"github.com/fraser-isbester/cebridge/internal/processor"
	"github.com/fraser-isbester/cebridge/internal/source"
	"github.com/fraser-isbester/cebridge/internal/transport"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cebridge",
		Short:         "Bridge CloudEvents between transports",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTransportsCmd())

	return rootCmd
}

type serveFlags struct {
	port       int
	receiver   string
	emitter    string
	sink       string
	topic      string
	logLevel   string
	kubeEvents bool
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive events over HTTP and forward them to the configured emitter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd.Flags(), flags, &cfg)
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&flags.port, "port", 8080, "Port of the push endpoint")
	cmd.Flags().StringVar(&flags.receiver, "receiver", "ce-http-binary", "Transport used to parse pushed requests")
	cmd.Flags().StringVar(&flags.emitter, "emitter", "google-pubsub", "Transport used to forward events")
	cmd.Flags().StringVar(&flags.sink, "sink", "", "Sink URL for the ce-http-binary emitter")
	cmd.Flags().StringVar(&flags.topic, "topic", "", "Topic for the google-pubsub emitter")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.kubeEvents, "kube-events", false, "Also forward Kubernetes events")

	return cmd
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(fs *pflag.FlagSet, flags *serveFlags, cfg *config.Config) {
	if fs.Changed("port") {
		cfg.Port = flags.port
	}
	if fs.Changed("receiver") {
		cfg.Receiver = flags.receiver
	}
	if fs.Changed("emitter") {
		cfg.Emitter = flags.emitter
	}
	if fs.Changed("sink") {
		cfg.Sink = flags.sink
	}
	if fs.Changed("topic") {
		cfg.Topic = flags.topic
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if fs.Changed("kube-events") {
		cfg.KubeEvents = flags.kubeEvents
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	registry, publisher := transport.NewDefaultRegistry(transport.Options{PubSub: cfg.PubSub()})
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Error closing publisher", zap.Error(err))
		}
	}()

	destination, err := cfg.Destination()
	if err != nil {
		return err
	}
	emit, err := registry.ResolveEmitter(ctx, cfg.Emitter, destination)
	if err != nil {
		return err
	}
	receive, err := registry.ResolveReceiver(ctx, cfg.Receiver)
	if err != nil {
		return err
	}

	fwd := processor.NewForwarder(processor.ForwarderConfig{
		Transport:  cfg.Emitter,
		BufferSize: processor.DefaultForwarderConfig().BufferSize,
	}, emit, logger, m)

	webhook := source.NewWebhookSource(source.WebhookConfig{Port: cfg.Port, Path: "/"}, receive, logger, m)
	webhook.AddHandler("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	fwd.RegisterSource(webhook)

	if cfg.KubeEvents {
		kubeSrc, err := source.NewKubeSourceFromEnv(logger, m)
		if err != nil {
			return fmt.Errorf("failed to create kubernetes source: %w", err)
		}
		fwd.RegisterSource(kubeSrc)
	}

	logger.Info("Starting cebridge",
		zap.String("receiver", cfg.Receiver),
		zap.String("emitter", cfg.Emitter),
		zap.String("destination", destination),
		zap.Int("port", cfg.Port))

	if err := fwd.Start(ctx); err != nil {
		_ = fwd.Stop()
		return err
	}

	// The forwarder keeps the parent context so queued events still drain
	// after a signal.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("Shutting down...")
	return fwd.Stop()
}

func newTransportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transports",
		Short: "List the registered emitter and receiver transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, _ := transport.NewDefaultRegistry(transport.Options{})
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "emitters:  %s\n", strings.Join(registry.Emitters(), ", "))
			fmt.Fprintf(out, "receivers: %s\n", strings.Join(registry.Receivers(), ", "))
			return nil
		},
	}
}
