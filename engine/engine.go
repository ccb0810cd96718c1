// Package engine defines the Engine adapter: the sole interface through
// which the gstd core calls into the multimedia backend. The backend
// itself — pipeline graph construction,
// element instantiation, state transitions, bus message decoding — is an
// opaque external collaborator; this package only names its contract and
// ships a Simulated implementation good enough to drive the core's tests
// and to run the daemon standalone without a real multimedia backend
// attached.
package engine

import (
	"context"
	"errors"
	"time"
)

// State mirrors the four pipeline states a real multimedia backend exposes.
type State string

const (
	StateNull    State = "null"
	StateReady   State = "ready"
	StatePaused  State = "paused"
	StatePlaying State = "playing"
)

// IsRunning reports whether state holds the pipeline's play-hold
// reference.
func (s State) IsRunning() bool {
	return s == StatePaused || s == StatePlaying
}

// SetStateResult distinguishes a state change that completed immediately
// from one the backend is still settling asynchronously.
type SetStateResult int

const (
	SetStateSync SetStateResult = iota
	SetStateAsync
)

// QueryResult is the outcome of a bounded-timeout state query.
type QueryResult int

const (
	QueryOK QueryResult = iota
	QueryAsync
	QueryFailed
)

// Handle is an opaque, backend-owned reference to a pipeline. The core
// treats it as inert data; only the Engine adapter dereferences it.
type Handle interface {
	ID() string
}

// ElementHandle is an opaque, backend-owned reference to one element within
// a pipeline.
type ElementHandle interface {
	Handle
	Name() string
}

// Access describes whether a property can be read, written, or both.
type Access string

const (
	AccessRead      Access = "read"
	AccessWrite     Access = "write"
	AccessReadWrite Access = "readwrite"
)

// PropertySchema describes one Engine-introspected element property.
type PropertySchema struct {
	Name   string
	Type   string // string|int|uint|bool|float|double|enum
	Access Access
}

// ActionSchema describes one Engine-introspected signal or action: its
// name, the Go-ish type name of each parameter, and its return type.
type ActionSchema struct {
	Name      string
	Arguments []string
	Return    string
}

// BusMessageType is the closed vocabulary of bus message kinds a backend
// can report.
type BusMessageType string

const (
	BusEOS          BusMessageType = "eos"
	BusError        BusMessageType = "error"
	BusWarning      BusMessageType = "warning"
	BusStateChanged BusMessageType = "state-changed"
	BusBuffering    BusMessageType = "buffering"
	BusTag          BusMessageType = "tag"
	BusQOS          BusMessageType = "qos"
)

// ValidBusMessageType reports whether name is a recognized bus message type,
// used by the Bus Node's message-type filter (BAD_VALUE on an unknown name).
func ValidBusMessageType(name string) bool {
	switch BusMessageType(name) {
	case BusEOS, BusError, BusWarning, BusStateChanged, BusBuffering, BusTag, BusQOS:
		return true
	default:
		return false
	}
}

// BusMessage is one decoded message popped from a pipeline's bus.
type BusMessage struct {
	Type      BusMessageType
	Source    string
	Text      string
	Timestamp time.Time
}

// ResyncCap bounds the number of ErrResync signals a caller of
// IterateElements will absorb before treating continued mutation as a
// fatal iteration error; the cap prevents livelock on pathological
// mutation rates.
const ResyncCap = 10

// ErrResync is returned by IterateElements when the underlying graph
// mutated mid-iteration; the caller may retry, up to ResyncCap times.
var ErrResync = errors.New("engine: graph mutated during iteration")

// Engine is the adapter surface the core depends on. Every method may block
// up to its declared timeout (or ctx deadline) and must be safe to call
// concurrently, including for the same handle: the core's Nodes do not
// serialize their Engine calls on a shared per-handle lock.
type Engine interface {
	// BuildPipeline parses a textual pipeline description and returns a
	// handle, or an error that the adapter boundary translates to
	// BAD_COMMAND.
	BuildPipeline(ctx context.Context, description string) (Handle, error)

	// SetState requests a state transition. A rejected transition is
	// translated to BAD_VALUE at the boundary.
	SetState(ctx context.Context, h Handle, state State) (SetStateResult, error)

	// QueryState polls current/pending state with a bounded timeout; the
	// core never issues a zero-timeout/no-wait query.
	QueryState(ctx context.Context, h Handle, timeout time.Duration) (current, pending State, result QueryResult, err error)

	// IterateElements lists the pipeline's elements, returning ErrResync if
	// the graph mutated mid-iteration; callers retry up to ResyncCap times.
	IterateElements(ctx context.Context, h Handle) ([]ElementHandle, error)

	ListProperties(ctx context.Context, e ElementHandle) ([]PropertySchema, error)
	ListSignals(ctx context.Context, e ElementHandle) ([]ActionSchema, error)
	ListActions(ctx context.Context, e ElementHandle) ([]ActionSchema, error)

	GetProperty(ctx context.Context, e ElementHandle, name string) (string, error)
	SetProperty(ctx context.Context, e ElementHandle, name, value string) error

	EmitAction(ctx context.Context, e ElementHandle, name string, args []string) (string, error)

	// SendEvent pushes a named event (eos, flush-start, flush-stop, seek,
	// ...) onto the pipeline, with args carrying any event-specific
	// parameters (e.g. seek's rate and position). Used by the EventFactory
	// Node's event_* shorthand family.
	SendEvent(ctx context.Context, h Handle, kind string, args []string) error

	// BusPop pops the next message matching typeMask (empty = all types)
	// within timeout, or returns (nil, nil) if none arrived in time.
	BusPop(ctx context.Context, h Handle, timeout time.Duration, typeMask []BusMessageType) (*BusMessage, error)

	// Graph renders the current element graph as DOT text.
	Graph(ctx context.Context, h Handle) (string, error)

	// Destroy releases all backend resources for h. Idempotent.
	Destroy(h Handle) error
}
