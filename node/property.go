package node

import (
	"context"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Property is a leaf Node mirroring one Engine-introspected element
// property. Update(v) delegates to the Engine's SetProperty; Read renders
// the current value alongside the property's schema.
type Property struct {
	Base

	eng    engine.Engine
	target engine.ElementHandle
	schema engine.PropertySchema
}

// NewProperty constructs a Property child of an Element's Properties
// container. target is the Engine's non-owning element handle; schema was
// obtained via the Engine's introspection at Properties-container
// construction time.
func NewProperty(parent Node, eng engine.Engine, target engine.ElementHandle, schema engine.PropertySchema, factory format.Factory) *Property {
	p := &Property{
		Base:   NewBase(KindProperty, schema.Name, "", parent, factory),
		eng:    eng,
		target: target,
		schema: schema,
	}
	return p
}

func (p *Property) Read(ctx context.Context) (string, error) {
	if p.schema.Access == engine.AccessWrite {
		return "", nodeerrors.BadCommand
	}
	value, err := p.eng.GetProperty(ctx, p.target, p.schema.Name)
	if err != nil {
		return "", nodeerrors.WrapFatal(err, "property", "read")
	}
	return renderWith(p.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(p.Name())
		f.SetMemberName("value")
		f.SetValue(value)
		f.SetMemberName("param")
		f.BeginObject()
		f.SetMemberName("description")
		f.SetValue(p.Description())
		f.SetMemberName("type")
		f.SetValue(p.schema.Type)
		f.SetMemberName("access")
		f.SetValue(string(p.schema.Access))
		f.EndObject()
		f.EndObject()
	})
}

func (p *Property) Update(ctx context.Context, value string) error {
	if p.schema.Access == engine.AccessRead {
		return nodeerrors.BadValue
	}
	if err := p.eng.SetProperty(ctx, p.target, p.schema.Name, value); err != nil {
		return nodeerrors.ToCode(nodeerrors.WrapInvalid(err, "property", "update"))
	}
	return nil
}

func (p *Property) ToString(ctx context.Context) (string, error) { return p.Read(ctx) }
