package node

import (
	"context"
	"strings"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Action is a leaf Node representing one named callable on an Engine
// element — either a signal or an action in Engine terms; both live under
// one container kind. Update(args) emits the call through the Engine; Read
// renders the callable's parameter schema.
type Action struct {
	Base

	eng    engine.Engine
	target engine.ElementHandle
	schema engine.ActionSchema
}

func newAction(parent Node, eng engine.Engine, target engine.ElementHandle, schema engine.ActionSchema, factory format.Factory) *Action {
	return &Action{
		Base:   NewBase(KindAction, schema.Name, "", parent, factory),
		eng:    eng,
		target: target,
		schema: schema,
	}
}

func (a *Action) Read(ctx context.Context) (string, error) {
	return renderWith(a.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(a.Name())
		f.SetMemberName("arguments")
		f.BeginArray()
		for _, arg := range a.schema.Arguments {
			f.SetValue(arg)
		}
		f.EndArray()
		f.SetMemberName("return")
		f.SetValue(a.schema.Return)
		f.EndObject()
	})
}

func (a *Action) ToString(ctx context.Context) (string, error) { return a.Read(ctx) }

// Update treats the operand as whitespace-joined arguments, matching
// action_emit's shorthand operand shape, and emits through the Engine.
func (a *Action) Update(ctx context.Context, value string) error {
	var args []string
	if strings.TrimSpace(value) != "" {
		args = strings.Fields(value)
	}
	if _, err := a.eng.EmitAction(ctx, a.target, a.schema.Name, args); err != nil {
		return nodeerrors.ToCode(nodeerrors.WrapInvalid(err, "action", "emit"))
	}
	return nil
}

// Actions is the container owning an Element's signal and action leaves,
// populated once from Engine introspection when the Element first resolves
// its "actions" child.
type Actions struct {
	Base
	children *childIndex
}

func newActions(parent Node, eng engine.Engine, target engine.ElementHandle, factory format.Factory, signals, actions []engine.ActionSchema) *Actions {
	a := &Actions{
		Base:     NewBase(KindActions, "actions", "element signals and actions", parent, factory),
		children: newChildIndex(),
	}
	for _, schema := range signals {
		_ = a.children.insert(newAction(a, eng, target, schema, factory))
	}
	for _, schema := range actions {
		_ = a.children.insert(newAction(a, eng, target, schema, factory))
	}
	return a
}

func (a *Actions) Child(name string) (Node, bool) { return a.children.get(name) }
func (a *Actions) Children() []Node               { return a.children.list() }

func (a *Actions) Read(ctx context.Context) (string, error) {
	return renderWith(a.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(a.Name())
		f.SetMemberName("children")
		f.BeginArray()
		for _, c := range a.children.list() {
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

func (a *Actions) ToString(ctx context.Context) (string, error) { return a.Read(ctx) }
