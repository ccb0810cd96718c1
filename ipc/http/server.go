// Package http implements the HTTP/JSON REST server: it maps
// GET/POST/PUT/DELETE onto the create/read/update/delete verb set via the
// shared parser, owns the bounded worker pool requests are handed off to,
// serves two fast-path endpoints inline, applies CORS, and shuts down only
// after draining the pool.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/ipc"
	"github.com/cfsbhawkins/gstd-1.x/metric"
	"github.com/cfsbhawkins/gstd-1.x/node"
	"github.com/cfsbhawkins/gstd-1.x/parser"
	"github.com/cfsbhawkins/gstd-1.x/worker"
)

const (
	maxBodySize        = 1 << 20
	defaultWorkTimeout = 30 * time.Second
)

// RateLimit configures the optional per-remote-address token-bucket limiter
// in front of the worker-pool handoff. Disabled by leaving
// RequestsPerSecond at zero.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// Server is the HTTP IPC server.
type Server struct {
	addr   string
	port   int
	parser *parser.Parser
	root   *node.Session
	pool   *worker.Pool
	logger *slog.Logger

	httpServer *http.Server

	rateLimit RateLimit
	limiters  sync.Map // remote host -> *rate.Limiter

	metricsReg *metric.Registry

	stopOnce sync.Once
}

// New constructs an HTTP server. maxWorkers is the pool size in the
// strict sense: with maxWorkers in flight, the next request is answered
// 503. A -1 or any non-positive value is clamped to a bounded default by
// worker.New.
func New(addr string, port, maxWorkers int, p *parser.Parser, root *node.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		port:   port,
		parser: p,
		root:   root,
		pool:   worker.New(maxWorkers, maxWorkers),
		logger: logger,
	}
}

// WithMetrics registers the worker pool's metrics and exposes a GET /metrics
// scrape endpoint.
func (s *Server) WithMetrics(reg *metric.Registry) *Server {
	s.metricsReg = reg
	s.pool.WithMetrics(reg, "gstd_http_pool")
	return s
}

// WithRateLimit enables the optional per-remote-address limiter.
func (s *Server) WithRateLimit(rl RateLimit) *Server {
	s.rateLimit = rl
	return s
}

func (s *Server) limiterFor(remote string) *rate.Limiter {
	if s.rateLimit.RequestsPerSecond <= 0 {
		return nil
	}
	host := remote
	if idx := strings.LastIndex(remote, ":"); idx >= 0 {
		host = remote[:idx]
	}
	if v, ok := s.limiters.Load(host); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(s.rateLimit.RequestsPerSecond), s.rateLimit.Burst)
	actual, _ := s.limiters.LoadOrStore(host, lim)
	return actual.(*rate.Limiter)
}

// Start launches the worker pool and the HTTP listener. A bind failure is
// returned to the caller as NoConnection; it aborts only this IPC.
func (s *Server) Start(ctx context.Context) error {
	// The pool's lifetime is governed by Stop, not the accept context: a
	// cancelled ctx must not kill workers while Stop still owes them a
	// drain.
	s.pool.Start(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pipelines/status", s.handlePipelinesStatus)
	if s.metricsReg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metricsReg.Prometheus(), promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.routeRemaining)

	addr := fmt.Sprintf("%s:%d", s.addr, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		_ = s.pool.Stop(time.Second)
		return fmt.Errorf("http: listen %s: %w (%s)", addr, err, errors.NoConnection)
	}

	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server exited", "component", "http-server", "error", err)
		}
	}()

	s.logger.Info("http server listening", "component", "http-server", "address", s.addr, "port", s.port)
	return nil
}

// routeRemaining dispatches to the WebSocket bus-stream upgrade when the
// path matches /pipelines/<name>/bus/stream, else to the ordinary CRUD
// dispatch path.
func (s *Server) routeRemaining(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/bus/stream") && r.Method == http.MethodGet {
		s.handleBusStream(w, r)
		return
	}
	s.handleDispatch(w, r)
}

// Stop drains the worker pool before releasing the HTTP listener: the pool
// must finish queued and in-flight tasks before the server handle goes
// away, or a worker could touch a freed response. Idempotent.
func (s *Server) Stop(timeout time.Duration) error {
	var stopErr error
	s.stopOnce.Do(func() {
		// The pool drains first; a request arriving meanwhile is refused by
		// Submit and answered 503. Shutdown then closes the listener and
		// waits for the remaining handlers to write their responses.
		if err := s.pool.Stop(timeout); err != nil {
			stopErr = err
		}
		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := s.httpServer.Shutdown(ctx); err != nil && stopErr == nil {
				stopErr = fmt.Errorf("http: shutdown: %w", err)
			}
		}
	})
	return stopErr
}

// ---- CORS ----

// applyCORS sets headers on the response header collection, never the
// request's.
func applyCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "origin,range,content-type")
	h.Set("Access-Control-Allow-Methods", "PUT, GET, POST, DELETE")
}

// ---- fast paths ----

// handleHealth never calls into the Engine: liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	applyCORS(w.Header())
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"code":0,"description":"OK","response":{"status":"healthy"}}`))
}

// handlePipelinesStatus iterates the Pipelines container under its lock;
// node.Pipeline.CurrentState retains each pipeline for the duration of its
// state query so a concurrent delete cannot tear the Engine handle down
// mid-query.
func (s *Server) handlePipelinesStatus(w http.ResponseWriter, r *http.Request) {
	applyCORS(w.Header())
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	type entry struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	var entries []entry

	s.root.Pipelines().WithLock(func(pipelines []node.Node) {
		for _, n := range pipelines {
			e := entry{Name: n.Name(), State: string(engine.StateNull)}
			if p, ok := n.(*node.Pipeline); ok {
				ctx, cancel := context.WithTimeout(r.Context(), 200*time.Millisecond)
				if st, err := p.CurrentState(ctx, 100*time.Millisecond); err == nil {
					e.State = string(st)
				}
				cancel()
			}
			entries = append(entries, e)
		}
	})

	body, _ := json.Marshal(map[string]any{
		"pipelines": entries,
		"count":     len(entries),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"code":0,"description":"OK","response":`))
	_, _ = w.Write(body)
	_, _ = w.Write([]byte(`}`))
}

// ---- request handoff ----

type requestIntent struct {
	verb        string
	path        string
	name        string
	description string
}

// handleDispatch is the non-fast-path request handler: build the command
// line, hand it to the worker pool, and block until the worker produces a
// result. net/http gives every request its own goroutine, so there is no
// separate pause/unpause step to coordinate: this handler goroutine itself
// blocks on the worker's result rather than returning early.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	applyCORS(w.Header())
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if lim := s.limiterFor(r.RemoteAddr); lim != nil && !lim.Allow() {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)

	intent, code := s.buildIntent(r)
	if code != errors.EOK {
		s.writeEnvelope(w, code, "")
		return
	}

	line := commandLine(intent)

	type result struct {
		code errors.Code
		out  string
	}
	resultCh := make(chan result, 1)

	err := s.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultWorkTimeout)
		defer cancel()
		code, out := s.parser.Execute(ctx, &line)
		resultCh <- result{code: code, out: out}
	})
	if err != nil {
		s.logger.Warn("http worker pool full", "component", "http-server", "request_id", requestID, "path", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	res := <-resultCh
	s.writeEnvelope(w, res.code, res.out)
}

func (s *Server) writeEnvelope(w http.ResponseWriter, code errors.Code, out string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	_, _ = w.Write([]byte(ipc.Envelope(code, out)))
}

// buildIntent maps the HTTP method onto a verb, extracting
// name/description from a JSON body (if Content-Type is application/json)
// with query-string values filling in whatever the body left unset.
func (s *Server) buildIntent(r *http.Request) (requestIntent, errors.Code) {
	path := r.URL.Path
	query := r.URL.Query()

	var name, description string
	if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
			_ = r.Body.Close()
			if err == nil && len(body) > 0 && int64(len(body)) <= maxBodySize {
				var parsed map[string]any
				if json.Unmarshal(body, &parsed) == nil {
					if v, ok := parsed["name"].(string); ok {
						name = v
					}
					if v, ok := parsed["description"].(string); ok {
						description = v
					}
				}
			}
		} else {
			_ = r.Body.Close()
		}
		if name == "" {
			name = query.Get("name")
		}
		if description == "" {
			description = query.Get("description")
		}
	}

	switch r.Method {
	case http.MethodGet:
		return requestIntent{verb: "read", path: path}, errors.EOK
	case http.MethodPost:
		if name == "" {
			return requestIntent{}, errors.BadValue
		}
		return requestIntent{verb: "create", path: path, name: name, description: description}, errors.EOK
	case http.MethodPut:
		if name == "" {
			return requestIntent{}, errors.BadValue
		}
		return requestIntent{verb: "update", path: path, name: name}, errors.EOK
	case http.MethodDelete:
		if name == "" {
			return requestIntent{}, errors.BadValue
		}
		return requestIntent{verb: "delete", path: path, name: name}, errors.EOK
	default:
		return requestIntent{}, errors.BadCommand
	}
}

func commandLine(i requestIntent) string {
	switch i.verb {
	case "create":
		if i.description != "" {
			return fmt.Sprintf("create %s %s %s", i.path, i.name, i.description)
		}
		return fmt.Sprintf("create %s %s", i.path, i.name)
	case "update":
		return fmt.Sprintf("update %s %s", i.path, i.name)
	case "delete":
		return fmt.Sprintf("delete %s %s", i.path, i.name)
	default:
		return fmt.Sprintf("read %s", i.path)
	}
}
