package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/omochice/wschat/internal/client"
	"github.com/omochice/wschat/internal/config"
	"github.com/omochice/wschat/internal/connection"
	"github.com/omochice/wschat/internal/logger"
	"github.com/omochice/wschat/internal/transport"
	_ "github.com/omochice/wschat/internal/transport/gobwas"
	_ "github.com/omochice/wschat/internal/transport/gorilla"
	_ "github.com/omochice/wschat/internal/transport/nhooyr"
	"github.com/omochice/wschat/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:          "wschat",
	Short:        "Terminal chat client for WebSocket chat servers",
	RunE:         runClient,
	SilenceUsage: true,
}

var (
	flagConfig    string
	flagTransport string
	flagUsername  string
	flagLogLevel  string
	flagLogFile   string
	flagNoColor   bool
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&flagConfig, "config", "c", "config.json", "path to the JSON configuration file")
	flags.StringVar(&flagTransport, "transport", "", "WebSocket client library ("+strings.Join(transport.Names(), ", ")+")")
	flags.StringVarP(&flagUsername, "username", "u", "", "pre-fill the username field")
	flags.StringVar(&flagLogLevel, "log-level", "", "diagnostic log level (debug, info, warn, error)")
	flags.StringVar(&flagLogFile, "log-file", "", "diagnostic log file")
	flags.BoolVar(&flagNoColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("unable to read the configuration file: %w", err)
	}
	if flagTransport != "" {
		cfg.Transport = flagTransport
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFile != "" {
		cfg.Log.LogToFile = true
		cfg.Log.FilePath = flagLogFile
	}

	dialer, err := transport.Lookup(cfg.Transport)
	if err != nil {
		return err
	}

	// The terminal belongs to the chat view, so diagnostics only go to the file.
	logger.Init(cfg.Log, nil)
	log := logger.New("main")
	log.WithFields(map[string]interface{}{
		"uri":       cfg.Connection.URI(),
		"transport": cfg.Transport,
	}).Info("Starting chat client")

	handle := connection.New(cfg.Connection, dialer, connection.WithLogger(logger.New("connection")))

	fd := int(os.Stdin.Fd())
	color := false
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set up the terminal: %w", err)
		}
		defer term.Restore(fd, state)
		color = !flagNoColor
	}

	view := tui.New(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, tui.WithColor(color), tui.WithUsername(flagUsername))
	if width, height, err := term.GetSize(fd); err == nil {
		view.SetSize(width, height)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := client.New(handle, view, client.WithLogger(logger.New("controller")))
	actions := make(chan client.Action)
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx, actions) }()

	inputErr := view.Run(ctx, actions)
	close(actions)
	if err := <-done; err != nil {
		log.WithError(err).Error("Controller stopped")
		return err
	}
	if inputErr != nil {
		log.WithError(inputErr).Error("Input stopped")
		return inputErr
	}
	log.Info("Chat client stopped")
	return nil
}
