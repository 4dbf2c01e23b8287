package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Zereker/wayland"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve a tracing display on a wayland socket",
	Long:  `Listens on a Wayland socket in the runtime directory, advertises the configured globals and logs every request clients send to them`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return startServer(ctx, cmd.Flags().Changed("log-level"))
	},
}

func loadConfig() (wayland.Config, error) {
	cfg := wayland.DefaultConfig()
	if config.configPath != "" {
		var err error
		if cfg, err = wayland.LoadConfig(config.configPath); err != nil {
			return cfg, err
		}
	}
	if config.socket != "" {
		cfg.Socket = config.socket
	}
	return cfg, nil
}

// startServer serves until ctx is canceled.
func startServer(ctx context.Context, levelFromFlag bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !levelFromFlag && cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
	}

	ifaces, err := lookupGlobals(cfg.Globals)
	if err != nil {
		return err
	}

	entry := logrus.WithField("component", "wldump")
	logger := newLogger(entry)

	l, err := cfg.Listen(wayland.ListenerLoggerOption(logger))
	if err != nil {
		return fmt.Errorf("unable to listen: %w", err)
	}

	opts := []wayland.ServerOption{wayland.ServerLoggerOption(logger)}
	for _, iface := range ifaces {
		opts = append(opts, wayland.GlobalOption(traceGlobal(iface, entry)))
	}
	for _, o := range cfg.ConnOptions() {
		opts = append(opts, wayland.ConnOption(o))
	}

	srv := wayland.NewServer(l, opts...)
	defer srv.Close()

	logrus.Infof("Listening on %s, run clients with %s=%s", l.Path(), wayland.EnvDisplay, l.Name())

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
