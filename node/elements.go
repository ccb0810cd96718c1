package node

import (
	"context"
	stderrors "errors"
	"sync"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Elements is the container owning a Pipeline's discovered Element Nodes.
// Elements are populated from Engine introspection, not client-issued
// create/delete; Create/Delete fall through to Base's BAD_COMMAND default.
type Elements struct {
	Base

	mu       sync.Mutex
	eng      engine.Engine
	handle   engine.Handle
	children *childIndex
	loaded   bool
}

func newElements(parent Node, eng engine.Engine, handle engine.Handle, factory format.Factory) *Elements {
	return &Elements{
		Base:     NewBase(KindElements, "elements", "pipeline elements", parent, factory),
		eng:      eng,
		handle:   handle,
		children: newChildIndex(),
	}
}

// refresh re-runs Engine iteration, absorbing up to engine.ResyncCap
// graph-mutated-mid-iteration resignals before giving up. Any other
// iteration error is fatal immediately.
func (e *Elements) refresh(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var handles []engine.ElementHandle
	var err error
	for attempt := 0; attempt <= engine.ResyncCap; attempt++ {
		handles, err = e.eng.IterateElements(ctx, e.handle)
		if !stderrors.Is(err, engine.ErrResync) {
			break
		}
	}
	if err != nil {
		return nodeerrors.WrapFatal(err, "elements", "iterate")
	}

	e.children = newChildIndex()
	for _, h := range handles {
		_ = e.children.insert(newElement(e, e.eng, h, e.factory))
	}
	e.loaded = true
	return nil
}

// index returns the current child index, loading it on first use. refresh
// replaces the index pointer under e.mu, so every reader goes through here
// rather than touching e.children directly.
func (e *Elements) index() *childIndex {
	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if !loaded {
		_ = e.refresh(context.Background())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.children
}

func (e *Elements) Child(name string) (Node, bool) {
	return e.index().get(name)
}

func (e *Elements) Children() []Node {
	return e.index().list()
}

func (e *Elements) Read(ctx context.Context) (string, error) {
	if err := e.refresh(ctx); err != nil {
		return "", err
	}
	e.mu.Lock()
	idx := e.children
	e.mu.Unlock()
	return renderWith(e.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(e.Name())
		f.SetMemberName("children")
		f.BeginArray()
		for _, c := range idx.list() {
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

func (e *Elements) ToString(ctx context.Context) (string, error) { return e.Read(ctx) }
