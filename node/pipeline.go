package node

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/eventbus"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Pipeline owns an Elements container, a Bus, a State, an EventFactory, and
// a Graph leaf, plus the Engine's pipeline handle. Its
// children are constructed lazily on first resolve and torn down together
// when the Pipeline is deleted.
type Pipeline struct {
	Base

	mu       sync.Mutex // object lock: serializes play-hold transitions and lazy child init
	eng      engine.Engine
	events   *eventbus.Publisher
	handle   engine.Handle
	playHold int32
	removed  atomic.Bool // set once Pipelines.Delete has removed this Node from the index

	elements *Elements
	bus      *Bus
	state    *State
	eventFac *EventFactory
	graph    *Graph
}

func newPipeline(parent Node, eng engine.Engine, events *eventbus.Publisher, handle engine.Handle, name, description string, factory format.Factory) *Pipeline {
	if events == nil {
		events = eventbus.Disabled()
	}
	return &Pipeline{
		Base:   NewBase(KindPipeline, name, description, parent, factory),
		eng:    eng,
		events: events,
		handle: handle,
	}
}

func (p *Pipeline) Child(name string) (Node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch name {
	case "elements":
		if p.elements == nil {
			p.elements = newElements(p, p.eng, p.handle, p.factory)
		}
		return p.elements, true
	case "bus":
		if p.bus == nil {
			p.bus = newBus(p, p.eng, p.Name(), p.events, p.handle, p.factory)
		}
		return p.bus, true
	case "state":
		if p.state == nil {
			p.state = newState(p, p.eng, p.Name(), p.events, p.handle, p.factory)
		}
		return p.state, true
	case "event":
		if p.eventFac == nil {
			p.eventFac = newEventFactory(p, p.eng, p.handle, p.factory)
		}
		return p.eventFac, true
	case "graph":
		if p.graph == nil {
			p.graph = newGraph(p, p.eng, p.handle, p.factory)
		}
		return p.graph, true
	default:
		return nil, false
	}
}

func (p *Pipeline) Children() []Node {
	names := []string{"elements", "bus", "state", "event", "graph"}
	out := make([]Node, 0, len(names))
	for _, n := range names {
		child, _ := p.Child(n)
		out = append(out, child)
	}
	return out
}

func (p *Pipeline) Read(ctx context.Context) (string, error) {
	return renderWith(p.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(p.Name())
		f.SetMemberName("description")
		f.SetValue(p.Description())
		f.SetMemberName("children")
		f.BeginArray()
		for _, c := range p.Children() {
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

func (p *Pipeline) ToString(ctx context.Context) (string, error) { return p.Read(ctx) }

// adjustPlayHold changes the play-hold refcount by delta, clamping at zero,
// and returns the resulting value. Guarded by the Pipeline's own object
// lock to keep the transition atomic with concurrent deletion checks.
func (p *Pipeline) adjustPlayHold(delta int32) int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playHold += delta
	if p.playHold < 0 {
		p.playHold = 0
	}
	return p.playHold
}

func (p *Pipeline) playHoldCount() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playHold
}

// CurrentState queries the Engine for this pipeline's current/pending state
// directly, bypassing the State child's JSON rendering, for the
// /pipelines/status fast path. The pipeline is retained for the
// duration of the query so a concurrent delete cannot tear down the Engine
// handle out from under it even if the caller is iterating without its own
// reference to this specific Node.
func (p *Pipeline) CurrentState(ctx context.Context, timeout time.Duration) (engine.State, error) {
	p.Retain()
	defer p.Release()
	current, _, _, err := p.eng.QueryState(ctx, p.handle, timeout)
	return current, err
}

// markRemoved records that Pipelines.Delete has taken this Node out of the
// index, so that whichever outstanding reference happens to be the last one
// released — the container's own, or a caller's resolved handle still in
// use at the moment of delete — tears the Engine handle down exactly once.
func (p *Pipeline) markRemoved() { p.removed.Store(true) }

// Release overrides Base.Release so the Engine handle is torn down the
// moment the refcount reaches zero after removal, regardless of which
// caller happens to be the one to drop the last reference.
func (p *Pipeline) Release() int32 {
	n := p.Base.Release()
	if n == 0 && p.removed.Load() {
		_ = p.destroy()
	}
	return n
}

// destroy releases the Engine handle. Called from Release once the
// play-hold refcount has been confirmed zero and the Node has been removed
// from its container's index.
func (p *Pipeline) destroy() error {
	if err := p.eng.Destroy(p.handle); err != nil {
		return nodeerrors.WrapFatal(err, "pipeline", "destroy")
	}
	return nil
}
