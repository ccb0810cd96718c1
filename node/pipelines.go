package node

import (
	"context"
	"strings"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/eventbus"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Pipelines is the Session-owned container of live Pipeline Nodes, an
// ordered, name-indexed collection.
type Pipelines struct {
	Base

	eng      engine.Engine
	events   *eventbus.Publisher
	children *childIndex
}

func newPipelines(parent Node, eng engine.Engine, events *eventbus.Publisher, factory format.Factory) *Pipelines {
	if events == nil {
		events = eventbus.Disabled()
	}
	return &Pipelines{
		Base:     NewBase(KindPipelines, "pipelines", "live pipeline collection", parent, factory),
		eng:      eng,
		events:   events,
		children: newChildIndex(),
	}
}

func (pl *Pipelines) Child(name string) (Node, bool) { return pl.children.get(name) }
func (pl *Pipelines) Children() []Node               { return pl.children.list() }

// WithLock runs fn while holding the container's read lock for the duration
// of a multi-Node iteration, e.g. the /pipelines/status fast path.
func (pl *Pipelines) WithLock(fn func(pipelines []Node)) {
	pl.children.withRLock(func() { fn(pl.children.list()) })
}

// Create delegates pipeline graph construction to the Engine. On Engine
// failure the partially-constructed Node is discarded and BAD_COMMAND is
// returned with no visible side effect.
func (pl *Pipelines) Create(ctx context.Context, name, description string) (Node, error) {
	if name == "" || strings.ContainsRune(name, '/') {
		return nil, nodeerrors.BadValue
	}
	handle, err := pl.eng.BuildPipeline(ctx, description)
	if err != nil {
		return nil, nodeerrors.BadCommand
	}

	pipeline := newPipeline(pl, pl.eng, pl.events, handle, name, description, pl.factory)
	if err := pl.children.insert(pipeline); err != nil {
		_ = pl.eng.Destroy(handle)
		return nil, err
	}
	return pipeline, nil
}

// Delete refuses to remove a pipeline whose play-hold refcount is nonzero
// (it is still running), then removes it from the index and releases the
// container's owning reference; the Engine handle is torn down once the
// last outstanding caller reference is released.
func (pl *Pipelines) Delete(ctx context.Context, name string) error {
	n, ok := pl.children.get(name)
	if !ok {
		return nodeerrors.NoResource
	}
	pipeline, ok := n.(*Pipeline)
	if !ok {
		return nodeerrors.BadCommand
	}
	if pipeline.playHoldCount() > 0 {
		return nodeerrors.BadValue
	}

	pipeline.markRemoved()
	if _, err := pl.children.remove(name); err != nil {
		return err
	}
	pipeline.Release()
	return nil
}

func (pl *Pipelines) Read(ctx context.Context) (string, error) {
	return renderWith(pl.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(pl.Name())
		f.SetMemberName("children")
		f.BeginArray()
		for _, c := range pl.children.list() {
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

func (pl *Pipelines) ToString(ctx context.Context) (string, error) { return pl.Read(ctx) }
