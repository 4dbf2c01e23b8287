// Command wldump is a Wayland protocol tracer. "wldump serve" runs a display
// server that advertises a configurable set of globals and logs every request
// its clients send; "wldump globals" lists the globals of a running
// compositor.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "wldump",
	Short:             "wldump - Wayland protocol tracer",
	PersistentPreRunE: before,
	SilenceUsage:      true,
}

// Command line configuration. Will be overwritten by flags.
type cliConfig struct {
	logLevel   string
	configPath string
	socket     string
}

var config = cliConfig{
	logLevel: "info",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.logLevel, "log-level", config.logLevel, "Log messages including and over the specified level: debug, info, warn, error")

	serveCmd.Flags().StringVar(&config.configPath, "config", "", "Path to a TOML configuration file")
	serveCmd.Flags().StringVar(&config.socket, "socket", "", "Display name or absolute socket path to listen on")

	rootCmd.AddCommand(serveCmd, globalsCmd)
}

func before(cmd *cobra.Command, args []string) error {
	if config.logLevel == "" {
		config.logLevel = "info"
	}

	level, err := logrus.ParseLevel(config.logLevel)
	if err != nil {
		return err
	}

	logrus.SetLevel(level)

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
