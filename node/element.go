package node

import (
	"context"
	"sync"

	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Element owns a Properties container and a Signals/Actions container over
// one Engine-introspected element, plus the non-owning Engine handle. Both
// sub-containers are built lazily on first resolve, mirroring Pipeline's
// lazy child construction.
type Element struct {
	Base

	mu         sync.Mutex
	eng        engine.Engine
	target     engine.ElementHandle
	properties *Properties
	actions    *Actions
}

func newElement(parent Node, eng engine.Engine, target engine.ElementHandle, factory format.Factory) *Element {
	return &Element{
		Base:   NewBase(KindElement, target.Name(), "", parent, factory),
		eng:    eng,
		target: target,
	}
}

func (e *Element) Child(name string) (Node, bool) {
	switch name {
	case "properties":
		return e.lazyProperties(), true
	case "actions", "signals":
		return e.lazyActions(), true
	default:
		return nil, false
	}
}

func (e *Element) Children() []Node {
	return []Node{e.lazyProperties(), e.lazyActions()}
}

func (e *Element) lazyProperties() *Properties {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.properties == nil {
		schemas, _ := e.eng.ListProperties(context.Background(), e.target)
		e.properties = newProperties(e, e.eng, e.target, e.factory, schemas)
	}
	return e.properties
}

func (e *Element) lazyActions() *Actions {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.actions == nil {
		signals, _ := e.eng.ListSignals(context.Background(), e.target)
		actionSchemas, _ := e.eng.ListActions(context.Background(), e.target)
		e.actions = newActions(e, e.eng, e.target, e.factory, signals, actionSchemas)
	}
	return e.actions
}

func (e *Element) Read(ctx context.Context) (string, error) {
	return renderWith(e.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(e.Name())
		f.SetMemberName("children")
		f.BeginArray()
		for _, c := range []Node{e.lazyProperties(), e.lazyActions()} {
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

func (e *Element) ToString(ctx context.Context) (string, error) { return e.Read(ctx) }
