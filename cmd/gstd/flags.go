package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cfsbhawkins/gstd-1.x/config"
)

// cliFlags holds every flag bindable on the root command. Flags override
// whatever a --config file already set on cfg: config.Load is applied
// first, flags layered on top.
type cliFlags struct {
	configPath string

	enableHTTP    bool
	httpAddress   string
	httpPort      int
	httpMaxThread int

	enableTCP    bool
	tcpAddress   string
	tcpPort      int
	tcpMaxThread int

	logLevel  string
	logFormat string

	eventBusEnabled bool
	eventBusURL     string
}

// newRootCommand builds the gstd root command. run is invoked with the
// layered, validated Config once flags are parsed.
func newRootCommand(run func(cfg *config.Config) error) *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:   "gstd",
		Short: "gstd is a remote-control daemon for a tree of live pipeline objects",
		Long: "gstd exposes remote control over a tree of live multimedia-pipeline\n" +
			"objects through a TCP command protocol and an HTTP/JSON REST protocol.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyFlags(cfg, cmd.Flags(), &flags)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "path to a YAML configuration file")

	f.BoolVar(&flags.enableHTTP, "enable-http-protocol", false, "start the HTTP server")
	f.StringVar(&flags.httpAddress, "http-address", "127.0.0.1", "HTTP bind address")
	f.IntVar(&flags.httpPort, "http-port", 5001, "HTTP bind port")
	f.IntVar(&flags.httpMaxThread, "http-max-threads", 16, "HTTP worker pool capacity (-1 historically meant unlimited; clamped to a bounded default)")

	f.BoolVar(&flags.enableTCP, "enable-tcp-protocol", false, "start the TCP server")
	f.StringVar(&flags.tcpAddress, "tcp-address", "127.0.0.1", "TCP bind address")
	f.IntVar(&flags.tcpPort, "tcp-port", 5000, "TCP bind port")
	f.IntVar(&flags.tcpMaxThread, "tcp-max-threads", 16, "TCP soft connection cap (-1 historically meant unlimited; clamped to a bounded default)")

	f.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&flags.logFormat, "log-format", "text", "log format: text, json")

	f.BoolVar(&flags.eventBusEnabled, "enable-eventbus", false, "publish pipeline lifecycle events to NATS")
	f.StringVar(&flags.eventBusURL, "eventbus-url", "nats://127.0.0.1:4222", "NATS URL for the eventbus publisher")

	cmd.AddCommand(newVersionCommand())
	return cmd
}

// applyFlags layers only the flags the user actually set on cmd's line over
// cfg, so an unset flag never clobbers a value the config file supplied.
func applyFlags(cfg *config.Config, flagSet interface {
	Changed(string) bool
}, flags *cliFlags) {
	if flagSet.Changed("enable-http-protocol") {
		cfg.HTTP.Enabled = flags.enableHTTP
	}
	if flagSet.Changed("http-address") {
		cfg.HTTP.Address = flags.httpAddress
	}
	if flagSet.Changed("http-port") {
		cfg.HTTP.Port = flags.httpPort
	}
	if flagSet.Changed("http-max-threads") {
		cfg.HTTP.MaxThreads = flags.httpMaxThread
	}
	if flagSet.Changed("enable-tcp-protocol") {
		cfg.TCP.Enabled = flags.enableTCP
	}
	if flagSet.Changed("tcp-address") {
		cfg.TCP.Address = flags.tcpAddress
	}
	if flagSet.Changed("tcp-port") {
		cfg.TCP.Port = flags.tcpPort
	}
	if flagSet.Changed("tcp-max-threads") {
		cfg.TCP.MaxThreads = flags.tcpMaxThread
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if flagSet.Changed("enable-eventbus") {
		cfg.EventBus.Enabled = flags.eventBusEnabled
	}
	if flagSet.Changed("eventbus-url") {
		cfg.EventBus.URL = flags.eventBusURL
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the gstd version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("gstd version %s (%s)\n", version, buildTime)
			return nil
		},
	}
}
