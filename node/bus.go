package node

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cfsbhawkins/gstd-1.x/buffer"
	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/eventbus"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

const defaultBusTimeout = 250 * time.Millisecond
const busQueueDepth = 64

// Bus is the Node owning a Pipeline's read-timeout, message-type filter,
// and pending-message queue. Reading the Bus itself pops the next
// matching message — either one already buffered from a prior drain, or a
// fresh one pulled from the Engine within the current timeout.
type Bus struct {
	Base

	mu           sync.Mutex
	eng          engine.Engine
	events       *eventbus.Publisher
	pipelineName string
	handle       engine.Handle
	timeout      time.Duration
	filter       []engine.BusMessageType
	queue        *buffer.Ring[engine.BusMessage]
	children     *childIndex
}

func newBus(parent Node, eng engine.Engine, pipelineName string, events *eventbus.Publisher, handle engine.Handle, factory format.Factory) *Bus {
	if events == nil {
		events = eventbus.Disabled()
	}
	b := &Bus{
		Base:         NewBase(KindBus, "bus", "pipeline message bus", parent, factory),
		eng:          eng,
		events:       events,
		pipelineName: pipelineName,
		handle:       handle,
		timeout:      defaultBusTimeout,
		queue:        buffer.New[engine.BusMessage](busQueueDepth, buffer.DropOldest),
		children:     newChildIndex(),
	}
	_ = b.children.insert(&busTimeout{Base: NewBase(KindState, "timeout", "bus read timeout in milliseconds", b, factory), bus: b})
	_ = b.children.insert(&busFilter{Base: NewBase(KindState, "filter", "bus message-type filter", b, factory), bus: b})
	return b
}

func (b *Bus) Child(name string) (Node, bool) { return b.children.get(name) }
func (b *Bus) Children() []Node               { return b.children.list() }

// Push enqueues a message drained by an external watcher so the next Read
// observes it from the queue before any fresh Engine pop.
func (b *Bus) Push(msg engine.BusMessage) { b.queue.Write(msg) }

// currentFilter and currentTimeout give the filter and timeout child leaves
// a locked snapshot of this Bus's configured filter/timeout.
func (b *Bus) currentFilter() []engine.BusMessageType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]engine.BusMessageType(nil), b.filter...)
}

func (b *Bus) currentTimeout() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeout
}

func (b *Bus) Read(ctx context.Context) (string, error) {
	msg, ok := b.queue.Read()
	if !ok {
		b.mu.Lock()
		timeout, filter := b.timeout, append([]engine.BusMessageType(nil), b.filter...)
		b.mu.Unlock()

		popped, err := b.eng.BusPop(ctx, b.handle, timeout, filter)
		if err != nil {
			return "", nodeerrors.WrapTransient(err, "bus", "pop")
		}
		if popped == nil {
			return renderWith(b.factory, func(f format.Formatter) {
				f.BeginObject()
				f.SetMemberName("message")
				f.SetValue(nil)
				f.EndObject()
			})
		}
		msg = *popped
		b.events.PublishBusMessage(b.pipelineName, string(msg.Type), msg.Source, msg.Text)
	}

	return renderWith(b.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("type")
		f.SetValue(string(msg.Type))
		f.SetMemberName("source")
		f.SetValue(msg.Source)
		f.SetMemberName("text")
		f.SetValue(msg.Text)
		f.EndObject()
	})
}

func (b *Bus) ToString(ctx context.Context) (string, error) { return b.Read(ctx) }

// busTimeout is the Bus's read-timeout child leaf (bus_timeout shorthand).
type busTimeout struct {
	Base
	bus *Bus
}

func (t *busTimeout) Read(ctx context.Context) (string, error) {
	return renderWith(t.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(t.Name())
		f.SetMemberName("value")
		f.SetValue(int64(t.bus.currentTimeout() / time.Millisecond))
		f.EndObject()
	})
}

func (t *busTimeout) ToString(ctx context.Context) (string, error) { return t.Read(ctx) }

func (t *busTimeout) Update(ctx context.Context, value string) error {
	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || ms < 0 {
		return nodeerrors.BadValue
	}
	t.bus.mu.Lock()
	t.bus.timeout = time.Duration(ms) * time.Millisecond
	t.bus.mu.Unlock()
	return nil
}

// busFilter is the Bus's message-type filter child leaf (bus_filter
// shorthand). An empty value clears the filter (all types pass).
type busFilter struct {
	Base
	bus *Bus
}

func (t *busFilter) Read(ctx context.Context) (string, error) {
	return renderWith(t.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(t.Name())
		f.SetMemberName("types")
		f.BeginArray()
		for _, ty := range t.bus.currentFilter() {
			f.SetValue(string(ty))
		}
		f.EndArray()
		f.EndObject()
	})
}

func (t *busFilter) ToString(ctx context.Context) (string, error) { return t.Read(ctx) }

func (t *busFilter) Update(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		t.bus.mu.Lock()
		t.bus.filter = nil
		t.bus.mu.Unlock()
		return nil
	}
	names := strings.Fields(value)
	types := make([]engine.BusMessageType, 0, len(names))
	for _, n := range names {
		if !engine.ValidBusMessageType(n) {
			return nodeerrors.BadValue
		}
		types = append(types, engine.BusMessageType(n))
	}
	t.bus.mu.Lock()
	t.bus.filter = types
	t.bus.mu.Unlock()
	return nil
}
