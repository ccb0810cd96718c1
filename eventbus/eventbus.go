// Package eventbus mirrors pipeline lifecycle transitions and bus messages
// onto NATS subjects for external subscribers. It is a supplementary,
// read-only fan-out: publishing is always best-effort and never sits on
// the critical path of a CRUD verb — a disconnected or slow NATS server is
// a transient condition, not a request failure.
package eventbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher fans pipeline events out onto NATS. A Publisher without a
// connection (see Disabled) is safe to call Publish on; it simply drops the
// event. A nil *Publisher is not safe to call.
type Publisher struct {
	subjectPrefix string
	logger        *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
}

// Disabled returns a Publisher with no connection: every Publish call is a
// no-op. Used when the eventbus.enabled config is false.
func Disabled() *Publisher {
	return &Publisher{logger: slog.Default()}
}

// Connect dials url and returns a Publisher backed by it. A connection
// failure here is returned to the caller, typically logged and ignored at
// startup — it aborts only the fan-out, never the daemon.
func Connect(url, subjectPrefix string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("gstd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("eventbus disconnected", "component", "eventbus", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("eventbus reconnected", "component", "eventbus")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect %q: %w", url, err)
	}
	return &Publisher{subjectPrefix: subjectPrefix, logger: logger, conn: conn}, nil
}

// Close drains and closes the underlying NATS connection, if any.
func (p *Publisher) Close() {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn != nil {
		_ = conn.Drain()
	}
}

// stateSubject and busSubject yield "gstd.pipelines.<name>.state" and
// "gstd.pipelines.<name>.bus" under the default prefix.
func (p *Publisher) stateSubject(pipeline string) string {
	return fmt.Sprintf("%s.pipelines.%s.state", p.subjectPrefix, pipeline)
}

func (p *Publisher) busSubject(pipeline string) string {
	return fmt.Sprintf("%s.pipelines.%s.bus", p.subjectPrefix, pipeline)
}

// PublishState fans out a pipeline's state transition. Best-effort: with no
// connection the event is silently dropped; a publish error is logged at
// debug level and otherwise ignored.
func (p *Publisher) PublishState(pipeline, state string) {
	p.publish(p.stateSubject(pipeline), map[string]any{
		"pipeline": pipeline,
		"state":    state,
	})
}

// PublishBusMessage fans out a decoded bus message.
func (p *Publisher) PublishBusMessage(pipeline string, msgType, source, text string) {
	p.publish(p.busSubject(pipeline), map[string]any{
		"pipeline": pipeline,
		"type":     msgType,
		"source":   source,
		"text":     text,
	})
}

func (p *Publisher) publish(subject string, payload map[string]any) {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Debug("eventbus marshal failed", "component", "eventbus", "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		p.logger.Debug("eventbus publish failed", "component", "eventbus", "subject", subject, "error", err)
	}
}
