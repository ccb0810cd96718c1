package node

import (
	"context"
	"strings"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// validEventKinds is the closed, ordered set of events this daemon's
// shorthand dispatch table recognizes: eos plus the flush and seek family.
var validEventKinds = []string{"eos", "flush-start", "flush-stop", "seek"}

func validEventKind(name string) bool {
	for _, k := range validEventKinds {
		if k == name {
			return true
		}
	}
	return false
}

// EventFactory is the Node through which a Pipeline's event_* shorthand
// family is delegated to the Engine. Create builds a transient Event child
// representing one fired event; it is never installed in an index, so the
// ordinary create/release discipline discards it immediately after the
// Engine call completes.
type EventFactory struct {
	Base

	eng    engine.Engine
	handle engine.Handle
}

func newEventFactory(parent Node, eng engine.Engine, handle engine.Handle, factory format.Factory) *EventFactory {
	return &EventFactory{
		Base:   NewBase(KindEventFactory, "event", "pipeline event factory", parent, factory),
		eng:    eng,
		handle: handle,
	}
}

// Create fires an event named by name (eos, flush-start, flush-stop, seek)
// with description carrying whitespace-joined event arguments (seek's rate
// and position). An unrecognized name is BAD_COMMAND, matching the parser's
// treatment of any other unknown shorthand target.
func (ef *EventFactory) Create(ctx context.Context, name, description string) (Node, error) {
	if !validEventKind(name) {
		return nil, nodeerrors.BadCommand
	}
	var args []string
	if strings.TrimSpace(description) != "" {
		args = strings.Fields(description)
	}
	if err := ef.eng.SendEvent(ctx, ef.handle, name, args); err != nil {
		return nil, nodeerrors.ToCode(nodeerrors.WrapInvalid(err, "event-factory", "send"))
	}
	return &event{Base: NewBase(KindEvent, name, description, ef, ef.factory)}, nil
}

func (ef *EventFactory) Read(ctx context.Context) (string, error) {
	return renderWith(ef.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(ef.Name())
		f.SetMemberName("events")
		f.BeginArray()
		for _, kind := range validEventKinds {
			f.SetValue(kind)
		}
		f.EndArray()
		f.EndObject()
	})
}

func (ef *EventFactory) ToString(ctx context.Context) (string, error) { return ef.Read(ctx) }

// event is the transient Node representing one fired event. It carries no
// further behavior: by the time a caller could use it, the Engine call it
// represents has already completed.
type event struct {
	Base
}

func (e *event) Read(ctx context.Context) (string, error) {
	return renderWith(e.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(e.Name())
		f.SetMemberName("description")
		f.SetValue(e.Description())
		f.EndObject()
	})
}

func (e *event) ToString(ctx context.Context) (string, error) { return e.Read(ctx) }
