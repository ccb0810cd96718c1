// Package main implements the gstd daemon entry point: it wires config,
// logging, metrics, the Engine adapter, the object tree, and both IPC
// servers together, then runs until a termination signal or a fatal startup
// error in either server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cfsbhawkins/gstd-1.x/config"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/eventbus"
	"github.com/cfsbhawkins/gstd-1.x/ipc/http"
	"github.com/cfsbhawkins/gstd-1.x/ipc/tcp"
	"github.com/cfsbhawkins/gstd-1.x/metric"
	"github.com/cfsbhawkins/gstd-1.x/node"
	"github.com/cfsbhawkins/gstd-1.x/parser"
)

const (
	version   = "0.1.0"
	buildTime = "dev"
)

func main() {
	cmd := newRootCommand(run)
	if err := cmd.Execute(); err != nil {
		slog.Error("gstd exited with error", "error", err)
		os.Exit(1)
	}
}

// run wires the daemon's components from cfg and blocks until shutdown:
// load config, set up infrastructure, start services, wait on a signal,
// shut down gracefully.
func run(cfg *config.Config) error {
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	logger.Info("starting gstd", "version", version, "build_time", buildTime)

	if !cfg.HTTP.Enabled && !cfg.TCP.Enabled {
		return fmt.Errorf("no IPC protocol enabled: pass --enable-http-protocol and/or --enable-tcp-protocol")
	}

	metrics := metric.New()

	var publisher *eventbus.Publisher
	if cfg.EventBus.Enabled {
		p, err := eventbus.Connect(cfg.EventBus.URL, cfg.EventBus.Subject, logger)
		if err != nil {
			logger.Warn("eventbus connect failed, continuing without it", "component", "eventbus", "error", err)
			publisher = eventbus.Disabled()
		} else {
			publisher = p
			defer publisher.Close()
		}
	} else {
		publisher = eventbus.Disabled()
	}

	eng := engine.NewSimulated()
	root := node.AcquireSession(node.WithEngine(eng), node.WithEventPublisher(publisher))
	defer node.ReleaseSession()

	p := parser.New(root)

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A plain Group, not errgroup.WithContext: that context is cancelled as
	// soon as Wait returns, and the servers keep running commands under the
	// context they are started with.
	var group errgroup.Group

	var tcpServer *tcp.Server
	var httpServer *http.Server

	if cfg.TCP.Enabled {
		tcpServer = tcp.New(cfg.TCP.Address, cfg.TCP.Port, cfg.TCP.MaxThreads, p, logger.With("component", "tcp-server"))
		tcpServer.WithMetrics(metrics)
		group.Go(func() error { return tcpServer.Start(signalCtx) })
	}

	if cfg.HTTP.Enabled {
		httpServer = http.New(cfg.HTTP.Address, cfg.HTTP.Port, cfg.HTTP.MaxThreads, p, root, logger.With("component", "http-server"))
		httpServer.WithMetrics(metrics)
		if cfg.RateLimit.Enabled {
			httpServer.WithRateLimit(http.RateLimit{
				RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
				Burst:             cfg.RateLimit.Burst,
			})
		}
		group.Go(func() error { return httpServer.Start(signalCtx) })
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	logger.Info("gstd started successfully")
	<-signalCtx.Done()
	logger.Info("received shutdown signal")

	const shutdownTimeout = 10 * time.Second
	if tcpServer != nil {
		if err := tcpServer.Stop(shutdownTimeout); err != nil {
			logger.Error("tcp server shutdown error", "error", err)
		}
	}
	if httpServer != nil {
		if err := httpServer.Stop(shutdownTimeout); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	logger.Info("gstd shutdown complete")
	return nil
}
