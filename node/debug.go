package node

import (
	"context"
	"strconv"
	"strings"
	"sync"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// thresholdLevels is the closed debug-threshold vocabulary the multimedia
// backend's logging subsystem understands.
var thresholdLevels = map[string]bool{
	"none": true, "error": true, "warning": true, "fixme": true,
	"info": true, "debug": true, "log": true, "trace": true, "memdump": true,
}

const defaultThreshold = "none"

// Debug is the Session-owned configuration Node exposing enable/color/
// threshold/reset, matching the debug_enable/debug_color/debug_threshold/
// debug_reset shorthand verbs.
type Debug struct {
	Base

	mu        sync.Mutex
	enable    bool
	color     bool
	threshold string

	children *childIndex
}

func newDebug(parent Node, factory format.Factory) *Debug {
	d := &Debug{
		Base:      NewBase(KindDebug, "debug", "debug logging configuration", parent, factory),
		threshold: defaultThreshold,
		children:  newChildIndex(),
	}
	_ = d.children.insert(&debugBool{Base: NewBase(KindState, "enable", "enable debug logging", d, factory), debug: d, field: debugFieldEnable})
	_ = d.children.insert(&debugBool{Base: NewBase(KindState, "color", "colorize debug output", d, factory), debug: d, field: debugFieldColor})
	_ = d.children.insert(&debugThreshold{Base: NewBase(KindState, "threshold", "debug category threshold", d, factory), debug: d})
	return d
}

func (d *Debug) Child(name string) (Node, bool) { return d.children.get(name) }
func (d *Debug) Children() []Node               { return d.children.list() }

func (d *Debug) Read(ctx context.Context) (string, error) {
	d.mu.Lock()
	enable, color, threshold := d.enable, d.color, d.threshold
	d.mu.Unlock()
	return renderWith(d.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("enable")
		f.SetValue(enable)
		f.SetMemberName("color")
		f.SetValue(color)
		f.SetMemberName("threshold")
		f.SetValue(threshold)
		f.EndObject()
	})
}

func (d *Debug) ToString(ctx context.Context) (string, error) { return d.Read(ctx) }

// Update implements debug_reset: any operand resets enable/color/threshold
// to their process defaults.
func (d *Debug) Update(ctx context.Context, value string) error {
	d.mu.Lock()
	d.enable = false
	d.color = false
	d.threshold = defaultThreshold
	d.mu.Unlock()
	return nil
}

type debugField int

const (
	debugFieldEnable debugField = iota
	debugFieldColor
)

type debugBool struct {
	Base
	debug *Debug
	field debugField
}

func (b *debugBool) value() bool {
	b.debug.mu.Lock()
	defer b.debug.mu.Unlock()
	if b.field == debugFieldEnable {
		return b.debug.enable
	}
	return b.debug.color
}

func (b *debugBool) Read(ctx context.Context) (string, error) {
	return renderWith(b.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(b.Name())
		f.SetMemberName("value")
		f.SetValue(b.value())
		f.EndObject()
	})
}

func (b *debugBool) ToString(ctx context.Context) (string, error) { return b.Read(ctx) }

func (b *debugBool) Update(ctx context.Context, value string) error {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return nodeerrors.BadValue
	}
	b.debug.mu.Lock()
	if b.field == debugFieldEnable {
		b.debug.enable = v
	} else {
		b.debug.color = v
	}
	b.debug.mu.Unlock()
	return nil
}

type debugThreshold struct {
	Base
	debug *Debug
}

func (t *debugThreshold) Read(ctx context.Context) (string, error) {
	t.debug.mu.Lock()
	level := t.debug.threshold
	t.debug.mu.Unlock()
	return renderWith(t.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(t.Name())
		f.SetMemberName("value")
		f.SetValue(level)
		f.EndObject()
	})
}

func (t *debugThreshold) ToString(ctx context.Context) (string, error) { return t.Read(ctx) }

func (t *debugThreshold) Update(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if !thresholdLevels[value] {
		return nodeerrors.BadValue
	}
	t.debug.mu.Lock()
	t.debug.threshold = value
	t.debug.mu.Unlock()
	return nil
}
