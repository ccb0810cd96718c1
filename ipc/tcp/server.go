// Package tcp implements the line-oriented TCP command server: accept a
// connection, read up to 1 MiB, dispatch the buffer as a single command
// through the shared parser, write back a NUL-terminated JSON envelope,
// and loop until the peer closes or an I/O error occurs.
package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/ipc"
	"github.com/cfsbhawkins/gstd-1.x/metric"
	"github.com/cfsbhawkins/gstd-1.x/parser"
	"github.com/cfsbhawkins/gstd-1.x/worker"
)

// maxCommandSize is the 1 MiB read ceiling per command.
const maxCommandSize = 1 << 20

// Server is the TCP IPC server. One goroutine accepts connections; each
// accepted connection runs its own goroutine, capped by a soft concurrency
// limit mirroring the HTTP worker pool's capacity.
type Server struct {
	addr   string
	port   int
	parser *parser.Parser
	logger *slog.Logger
	sem    chan struct{}

	metrics *serverMetrics

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type serverMetrics struct {
	connectionsActive prometheus.Gauge
	commandsServed    prometheus.Counter
	connectionErrors  prometheus.Counter
}

// New constructs a TCP server bound to addr:port once Start is called.
// maxConns of -1 or any non-positive value clamps to a bounded default via
// the same rule the worker pool applies, so "unlimited" can never exhaust
// threads.
func New(addr string, port, maxConns int, p *parser.Parser, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	maxConns = worker.ClampSize(maxConns)
	return &Server{
		addr:   addr,
		port:   port,
		parser: p,
		logger: logger,
		sem:    make(chan struct{}, maxConns),
		stopCh: make(chan struct{}),
	}
}

// WithMetrics registers connection/command counters on reg.
func (s *Server) WithMetrics(reg *metric.Registry) *Server {
	if reg == nil {
		return s
	}
	m := &serverMetrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gstd", Subsystem: "tcp", Name: "connections_active", Help: "open TCP connections"}),
		commandsServed:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gstd", Subsystem: "tcp", Name: "commands_served_total", Help: "commands dispatched over TCP"}),
		connectionErrors:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gstd", Subsystem: "tcp", Name: "connection_errors_total", Help: "TCP connection I/O errors"}),
	}
	_ = reg.Register("tcp_connections_active", m.connectionsActive)
	_ = reg.Register("tcp_commands_served_total", m.commandsServed)
	_ = reg.Register("tcp_connection_errors_total", m.connectionErrors)
	s.metrics = m
	return s
}

// Start binds the listener and runs the accept loop on a new goroutine. A
// bind failure is returned as NoConnection and aborts only this IPC, not
// the caller's other server.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.addr, s.port))
	if err != nil {
		return fmt.Errorf("tcp: listen %s:%d: %w (%s)", s.addr, s.port, err, errors.NoConnection)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)

	s.logger.Info("tcp server listening", "component", "tcp-server", "address", s.addr, "port", s.port)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn("tcp accept error", "component", "tcp-server", "error", err)
			return
		}

		select {
		case s.sem <- struct{}{}:
		case <-s.stopCh:
			_ = conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn is the per-connection read/dispatch/respond loop. Every exit
// path closes conn (the deferred Close) so a sustained-load client
// population cannot exhaust file descriptors.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if s.metrics != nil {
		s.metrics.connectionsActive.Inc()
		defer s.metrics.connectionsActive.Dec()
	}

	remote := conn.RemoteAddr().String()
	served := 0
	buf := make([]byte, maxCommandSize)

	for {
		n, err := conn.Read(buf)
		if err != nil || n == 0 {
			s.logger.Info("tcp connection finished", "component", "tcp-server", "remote", remote, "commands_served", served)
			return
		}

		cmd := string(buf[:n])
		code, out := s.parser.Execute(ctx, &cmd)
		response := append([]byte(ipc.Envelope(code, out)), 0)

		if _, err := conn.Write(response); err != nil {
			if s.metrics != nil {
				s.metrics.connectionErrors.Inc()
			}
			s.logger.Warn("tcp write error", "component", "tcp-server", "remote", remote, "error", err)
			return
		}
		served++
		if s.metrics != nil {
			s.metrics.commandsServed.Inc()
		}
	}
}

// Stop nulls the listener reference before closing it, then joins every
// outstanding connection goroutine; clearing the reference first prevents
// a double-close race with a concurrent Start. Idempotent.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	close(s.stopCh)
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("tcp: stop timed out waiting for connections to drain")
	}
}
