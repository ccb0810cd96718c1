package node

import (
	"context"
	"strings"
	"sync"
	"time"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/eventbus"
	"github.com/cfsbhawkins/gstd-1.x/format"
	"github.com/cfsbhawkins/gstd-1.x/retry"
)

// stateQueryTimeout is the bounded wait every state query uses. A
// zero-timeout/no-wait query misreports during async transitions.
const stateQueryTimeout = 100 * time.Millisecond

// State is the leaf Node mirroring a Pipeline's Engine state. Entering
// playing/paused from a non-running state increments the owning Pipeline's
// play-hold refcount; leaving them for null or ready decrements it.
type State struct {
	Base

	mu           sync.Mutex
	eng          engine.Engine
	events       *eventbus.Publisher
	pipelineName string
	handle       engine.Handle
	pipeline     *Pipeline
	requested    engine.State
}

func newState(parent *Pipeline, eng engine.Engine, pipelineName string, events *eventbus.Publisher, handle engine.Handle, factory format.Factory) *State {
	if events == nil {
		events = eventbus.Disabled()
	}
	return &State{
		Base:         NewBase(KindState, "state", "pipeline state", parent, factory),
		eng:          eng,
		events:       events,
		pipelineName: pipelineName,
		handle:       handle,
		pipeline:     parent,
		requested:    engine.StateNull,
	}
}

func (s *State) Read(ctx context.Context) (string, error) {
	current, pending, result, err := s.eng.QueryState(ctx, s.handle, stateQueryTimeout)
	if err != nil {
		return "", nodeerrors.WrapTransient(err, "state", "query")
	}
	return renderWith(s.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("current")
		f.SetValue(string(current))
		f.SetMemberName("pending")
		f.SetValue(string(pending))
		f.SetMemberName("async")
		f.SetValue(result == engine.QueryAsync)
		f.EndObject()
	})
}

func (s *State) ToString(ctx context.Context) (string, error) { return s.Read(ctx) }

func (s *State) Update(ctx context.Context, value string) error {
	target := engine.State(strings.TrimSpace(value))
	switch target {
	case engine.StateNull, engine.StateReady, engine.StatePaused, engine.StatePlaying:
	default:
		return nodeerrors.BadValue
	}

	s.mu.Lock()
	already := s.requested == target
	s.mu.Unlock()
	if already {
		return nodeerrors.NoUpdate
	}

	// The Engine may reject a transition while the graph is still settling
	// from a prior one; a handful of tight retries clears that without
	// surfacing a transient failure to the client.
	err := retry.Do(ctx, retry.Quick(), func() error {
		_, err := s.eng.SetState(ctx, s.handle, target)
		return err
	})
	if err != nil {
		return nodeerrors.ToCode(nodeerrors.WrapInvalid(err, "state", "set"))
	}

	s.mu.Lock()
	prevRunning := s.requested.IsRunning()
	s.requested = target
	s.mu.Unlock()

	// The play hold tracks the running/non-running edge, not individual
	// state names: leaving the running family through any state (null or
	// ready) releases the hold, so an interposed ready can never strand
	// the count and block deletion.
	switch {
	case target.IsRunning() && !prevRunning:
		s.pipeline.adjustPlayHold(1)
	case !target.IsRunning() && prevRunning:
		s.pipeline.adjustPlayHold(-1)
	}
	s.events.PublishState(s.pipelineName, string(target))
	return nil
}
