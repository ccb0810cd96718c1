package node

import (
	"context"
	"sync"

	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/eventbus"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Session is the process-singleton root of the object tree, owning one
// Pipelines container and one Debug configuration Node. Construction is
// guarded by AcquireSession's process-wide mutex;
// Session itself only holds the owned subtrees and the shared formatter
// factory every descendant Node renders through.
type Session struct {
	Base

	pipelines *Pipelines
	debug     *Debug
}

// Option configures a Session at construction time.
type Option func(*sessionConfig)

type sessionConfig struct {
	eng     engine.Engine
	factory format.Factory
	events  *eventbus.Publisher
}

// WithEngine installs the Engine adapter the Session's Pipelines container
// delegates pipeline construction to. Required.
func WithEngine(eng engine.Engine) Option {
	return func(c *sessionConfig) { c.eng = eng }
}

// WithFormatterFactory overrides the default JSON formatter factory, e.g.
// for tests that need to inspect a custom rendering.
func WithFormatterFactory(f format.Factory) Option {
	return func(c *sessionConfig) { c.factory = f }
}

// WithEventPublisher installs the optional NATS fan-out publisher state
// transitions and bus messages are mirrored onto. The default,
// eventbus.Disabled, makes every publish call a no-op.
func WithEventPublisher(p *eventbus.Publisher) Option {
	return func(c *sessionConfig) { c.events = p }
}

func newSession(opts ...Option) *Session {
	cfg := &sessionConfig{factory: format.JSONFactory, events: eventbus.Disabled()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.eng == nil {
		panic("node: AcquireSession requires WithEngine")
	}
	s := &Session{Base: NewBase(KindSession, "session", "gstd process root", nil, cfg.factory)}
	s.pipelines = newPipelines(s, cfg.eng, cfg.events, cfg.factory)
	s.debug = newDebug(s, cfg.factory)
	return s
}

var (
	sessionMu   sync.Mutex
	sessionInst *Session
)

// AcquireSession returns the process-singleton Session, constructing it on
// the first call under a process-wide mutex and incrementing its reference
// count on every later call. opts are only consulted on the first call.
// Every AcquireSession must be balanced by a ReleaseSession.
func AcquireSession(opts ...Option) *Session {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionInst == nil {
		sessionInst = newSession(opts...)
		return sessionInst
	}
	sessionInst.Retain()
	return sessionInst
}

// ReleaseSession balances one AcquireSession. Tearing down the last
// reference drops the singleton so a later AcquireSession reinitializes it.
func ReleaseSession() {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionInst == nil {
		return
	}
	if sessionInst.Release() == 0 {
		sessionInst = nil
	}
}

func (s *Session) Child(name string) (Node, bool) {
	switch name {
	case "pipelines":
		return s.pipelines, true
	case "debug":
		return s.debug, true
	default:
		return nil, false
	}
}

func (s *Session) Children() []Node { return []Node{s.pipelines, s.debug} }

// Pipelines exposes the root Pipelines container for components (the HTTP
// /pipelines/status fast path) that need direct access without going
// through path resolution.
func (s *Session) Pipelines() *Pipelines { return s.pipelines }

func (s *Session) Read(ctx context.Context) (string, error) {
	return renderWith(s.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(s.Name())
		f.SetMemberName("children")
		f.BeginArray()
		for _, c := range s.Children() {
			f.BeginObject()
			f.SetMemberName("name")
			f.SetValue(c.Name())
			f.SetMemberName("description")
			f.SetValue(c.Description())
			f.EndObject()
		}
		f.EndArray()
		f.EndObject()
	})
}

func (s *Session) ToString(ctx context.Context) (string, error) { return s.Read(ctx) }
