package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Simulated is an in-process Engine implementation standing in for the real
// multimedia backend. It accepts gst-launch-style pipeline descriptions textually
// (splitting on "!") to build an element list, tracks state transitions
// in-memory, and synthesizes a plausible bus message stream — enough to
// drive the core's CRUD, concurrency, and resync tests end to end without a
// real backend attached.
type Simulated struct {
	mu        sync.Mutex
	pipelines map[string]*simPipeline
}

// NewSimulated constructs an empty Simulated engine.
func NewSimulated() *Simulated {
	return &Simulated{pipelines: make(map[string]*simPipeline)}
}

type simElement struct {
	id   string
	name string
	kind string // element factory name, parsed from the description
}

func (e *simElement) ID() string   { return e.id }
func (e *simElement) Name() string { return e.name }

type simHandle struct{ id string }

func (h *simHandle) ID() string { return h.id }

type simPipeline struct {
	mu         sync.Mutex
	id         string
	elements   []*simElement
	current    State
	pending    State
	resyncLeft int // iteration attempts that will see ErrResync before succeeding
	bus        []BusMessage
	destroyed  bool
}

func (s *Simulated) get(h Handle) (*simPipeline, error) {
	hs, ok := h.(*simHandle)
	if !ok {
		return nil, fmt.Errorf("engine: invalid handle type %T", h)
	}
	s.mu.Lock()
	p, ok := s.pipelines[hs.id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown pipeline handle %s", hs.id)
	}
	return p, nil
}

// BuildPipeline splits description on "!" the way a gst-launch string
// chains elements, synthesizing one simElement per segment. An empty
// description is rejected.
func (s *Simulated) BuildPipeline(ctx context.Context, description string) (Handle, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("engine: empty pipeline description")
	}

	segments := strings.Split(description, "!")
	elements := make([]*simElement, 0, len(segments))
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, fmt.Errorf("engine: empty element segment at position %d", i)
		}
		fields := strings.Fields(seg)
		kind := fields[0]
		elements = append(elements, &simElement{
			id:   uuid.NewString(),
			name: fmt.Sprintf("%s%d", kind, i),
			kind: kind,
		})
	}

	id := uuid.NewString()
	p := &simPipeline{id: id, elements: elements, current: StateNull, pending: StateNull}

	s.mu.Lock()
	s.pipelines[id] = p
	s.mu.Unlock()

	return &simHandle{id: id}, nil
}

// SetState validates the requested transition and applies it synchronously;
// the simulated backend never settles asynchronously, so SetStateSync is
// always returned.
func (s *Simulated) SetState(ctx context.Context, h Handle, state State) (SetStateResult, error) {
	p, err := s.get(h)
	if err != nil {
		return 0, err
	}
	switch state {
	case StateNull, StateReady, StatePaused, StatePlaying:
	default:
		return 0, fmt.Errorf("engine: unknown state %q", state)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return 0, fmt.Errorf("engine: pipeline destroyed")
	}
	p.current = state
	p.pending = state
	p.bus = append(p.bus, BusMessage{Type: BusStateChanged, Source: p.id, Text: string(state), Timestamp: simNow()})
	return SetStateSync, nil
}

func (s *Simulated) QueryState(ctx context.Context, h Handle, timeout time.Duration) (current, pending State, result QueryResult, err error) {
	p, gerr := s.get(h)
	if gerr != nil {
		return "", "", QueryFailed, gerr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.pending, QueryOK, nil
}

// IterateElements returns the pipeline's element handles, reporting
// ErrResync while a ForceResync budget is outstanding.
func (s *Simulated) IterateElements(ctx context.Context, h Handle) ([]ElementHandle, error) {
	p, err := s.get(h)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resyncLeft > 0 {
		p.resyncLeft--
		return nil, ErrResync
	}
	out := make([]ElementHandle, 0, len(p.elements))
	for _, e := range p.elements {
		out = append(out, e)
	}
	return out, nil
}

// ForceResync makes the next n IterateElements calls on h report ErrResync,
// simulating a graph mutating under a live iteration.
func (s *Simulated) ForceResync(h Handle, n int) {
	p, err := s.get(h)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.resyncLeft = n
	p.mu.Unlock()
}

// simPropertyTable is a minimal per-element-kind property schema standing
// in for real GObject introspection.
var simPropertyTable = map[string][]PropertySchema{
	"fakesrc":  {{Name: "num-buffers", Type: "int", Access: AccessReadWrite}, {Name: "is-live", Type: "bool", Access: AccessReadWrite}},
	"fakesink": {{Name: "sync", Type: "bool", Access: AccessReadWrite}, {Name: "silent", Type: "bool", Access: AccessReadWrite}},
}

func (s *Simulated) ListProperties(ctx context.Context, e ElementHandle) ([]PropertySchema, error) {
	se, ok := e.(*simElement)
	if !ok {
		return nil, fmt.Errorf("engine: invalid element handle type %T", e)
	}
	if schemas, ok := simPropertyTable[se.kind]; ok {
		return schemas, nil
	}
	return []PropertySchema{{Name: "name", Type: "string", Access: AccessRead}}, nil
}

func (s *Simulated) ListSignals(ctx context.Context, e ElementHandle) ([]ActionSchema, error) {
	return []ActionSchema{{Name: "handoff", Arguments: []string{"buffer"}, Return: "void"}}, nil
}

func (s *Simulated) ListActions(ctx context.Context, e ElementHandle) ([]ActionSchema, error) {
	return []ActionSchema{{Name: "push-buffer", Arguments: []string{"buffer"}, Return: "flow-return"}}, nil
}

type elemProps struct {
	mu     sync.Mutex
	values map[string]string
}

var simElemValues sync.Map // map[elementID]*elemProps

func valuesFor(id string) *elemProps {
	v, _ := simElemValues.LoadOrStore(id, &elemProps{values: make(map[string]string)})
	return v.(*elemProps)
}

func (s *Simulated) GetProperty(ctx context.Context, e ElementHandle, name string) (string, error) {
	props := valuesFor(e.ID())
	props.mu.Lock()
	defer props.mu.Unlock()
	if v, ok := props.values[name]; ok {
		return v, nil
	}
	return "0", nil
}

func (s *Simulated) SetProperty(ctx context.Context, e ElementHandle, name, value string) error {
	props := valuesFor(e.ID())
	props.mu.Lock()
	props.values[name] = value
	props.mu.Unlock()
	return nil
}

func (s *Simulated) EmitAction(ctx context.Context, e ElementHandle, name string, args []string) (string, error) {
	return strconv.Itoa(len(args)), nil
}

func (s *Simulated) SendEvent(ctx context.Context, h Handle, kind string, args []string) error {
	p, err := s.get(h)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch kind {
	case "eos":
		p.bus = append(p.bus, BusMessage{Type: BusEOS, Source: p.id, Text: "end-of-stream", Timestamp: simNow()})
	case "flush-start", "flush-stop":
		p.bus = append(p.bus, BusMessage{Type: BusTag, Source: p.id, Text: kind, Timestamp: simNow()})
	case "seek":
		p.bus = append(p.bus, BusMessage{Type: BusTag, Source: p.id, Text: "seek " + strings.Join(args, " "), Timestamp: simNow()})
	default:
		return fmt.Errorf("engine: unknown event kind %q", kind)
	}
	return nil
}

// BusPop drains the oldest buffered message matching typeMask, blocking up
// to timeout if none is queued yet.
func (s *Simulated) BusPop(ctx context.Context, h Handle, timeout time.Duration, typeMask []BusMessageType) (*BusMessage, error) {
	deadline := simNow().Add(timeout)
	for {
		p, err := s.get(h)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		for i, msg := range p.bus {
			if len(typeMask) == 0 || matchesMask(msg.Type, typeMask) {
				p.bus = append(p.bus[:i], p.bus[i+1:]...)
				p.mu.Unlock()
				return &msg, nil
			}
		}
		p.mu.Unlock()

		if simNow().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func matchesMask(t BusMessageType, mask []BusMessageType) bool {
	for _, m := range mask {
		if m == t {
			return true
		}
	}
	return false
}

func (s *Simulated) Graph(ctx context.Context, h Handle) (string, error) {
	p, err := s.get(h)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	b.WriteString("digraph pipeline {\n")
	for i, e := range p.elements {
		b.WriteString(fmt.Sprintf("  %q [label=%q];\n", e.name, e.kind))
		if i > 0 {
			b.WriteString(fmt.Sprintf("  %q -> %q;\n", p.elements[i-1].name, e.name))
		}
	}
	b.WriteString("}\n")
	return b.String(), nil
}

func (s *Simulated) Destroy(h Handle) error {
	hs, ok := h.(*simHandle)
	if !ok {
		return fmt.Errorf("engine: invalid handle type %T", h)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pipelines[hs.id]; ok {
		p.mu.Lock()
		p.destroyed = true
		p.mu.Unlock()
		delete(s.pipelines, hs.id)
	}
	return nil
}

// simNow is a thin indirection over time.Now so the one call site is easy
// to spot; wall-clock time is fine here since the simulated backend has no
// determinism requirement across process restarts.
func simNow() time.Time { return time.Now() }

var _ Engine = (*Simulated)(nil)
