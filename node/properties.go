package node

import (
	"context"

	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Properties is the container owning one Element's Property leaves,
// populated once from Engine introspection.
type Properties struct {
	Base
	children *childIndex
}

func newProperties(parent Node, eng engine.Engine, target engine.ElementHandle, factory format.Factory, schemas []engine.PropertySchema) *Properties {
	p := &Properties{
		Base:     NewBase(KindProperties, "properties", "element properties", parent, factory),
		children: newChildIndex(),
	}
	for _, schema := range schemas {
		_ = p.children.insert(NewProperty(p, eng, target, schema, factory))
	}
	return p
}

func (p *Properties) Child(name string) (Node, bool) { return p.children.get(name) }
func (p *Properties) Children() []Node               { return p.children.list() }

func (p *Properties) Read(ctx context.Context) (string, error) {
	return renderWith(p.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(p.Name())
		f.SetMemberName("children")
		f.BeginArray()
		for _, c := range p.children.list() {
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

func (p *Properties) ToString(ctx context.Context) (string, error) { return p.Read(ctx) }
