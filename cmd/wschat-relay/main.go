package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/omochice/wschat/internal/logger"
	"github.com/omochice/wschat/internal/relay"
)

var rootCmd = &cobra.Command{
	Use:          "wschat-relay",
	Short:        "Chat relay that attaches identity to messages and broadcasts them",
	RunE:         runRelay,
	SilenceUsage: true,
}

var (
	flagAddr        string
	flagResource    string
	flagProtocols   []string
	flagDataPath    string
	flagHistory     int
	flagNatsURL     string
	flagNatsSubject string
	flagLogLevel    string
	flagLogJSON     bool
	flagLogFile     string
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagAddr, "addr", ":8000", "listen address")
	flags.StringVar(&flagResource, "resource", "/chat", "WebSocket resource path")
	flags.StringSliceVar(&flagProtocols, "protocols", []string{"chat"}, "accepted subprotocols")
	flags.StringVar(&flagDataPath, "data-path", "", "directory of the message history (empty to disable)")
	flags.IntVar(&flagHistory, "history", 50, "number of messages replayed to new clients")
	flags.StringVar(&flagNatsURL, "nats-url", "", "NATS server shared with other relays (empty to run alone)")
	flags.StringVar(&flagNatsSubject, "nats-subject", relay.DefaultSubject, "NATS subject for relayed messages")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&flagLogJSON, "log-json", false, "log as JSON")
	flags.StringVar(&flagLogFile, "log-file", "", "also log to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	logConfig := logger.DefaultLogConfig()
	logConfig.Level = flagLogLevel
	logConfig.LogToJSON = flagLogJSON
	logConfig.LogToFile = flagLogFile != ""
	logConfig.FilePath = flagLogFile
	logger.Init(logConfig, os.Stdout)
	log := logger.New("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := relay.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	opts := []relay.HubOption{relay.WithMetrics(metrics)}

	if flagDataPath != "" {
		store, err := relay.OpenStore(flagDataPath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, relay.WithHistory(store, flagHistory))
		log.WithField("path", flagDataPath).Info("Message history enabled")
	}

	if flagNatsURL != "" {
		bus, err := relay.DialNATS(flagNatsURL, flagNatsSubject)
		if err != nil {
			return err
		}
		defer bus.Close()
		opts = append(opts, relay.WithBus(bus))
		log.WithField("url", flagNatsURL).Info("Connected to NATS")
	}

	hub := relay.NewHub(opts...)
	if err := hub.Start(); err != nil {
		return err
	}

	srv := relay.New(relay.Config{
		Addr:      flagAddr,
		Resource:  flagResource,
		Protocols: flagProtocols,
	}, hub, registry)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down relay")
		srv.Stop()
		return <-errCh
	}
}
