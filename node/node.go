// Package node implements the object tree: a hierarchical, named tree of
// polymorphic Nodes reachable through a URI-style path resolver and a
// uniform CRUD verb set (create/read/update/delete/to_string). This is the
// core's largest component; every other package (parser, both IPC servers)
// dispatches into it rather than touching pipeline/element state directly.
//
// Verb dispatch is implemented once per kind: each concrete kind embeds
// Base and overrides only the verbs it supports. Base's own verb methods
// all return BAD_COMMAND, so a kind that does not override Create, say,
// automatically rejects it through Go's ordinary method promotion — no
// vtable or type switch required.
package node

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Kind tags the concrete variety of a Node, used for logging and for the
// container/leaf verb-support distinction.
type Kind string

const (
	KindSession      Kind = "session"
	KindPipelines    Kind = "pipelines"
	KindPipeline     Kind = "pipeline"
	KindElements     Kind = "elements"
	KindElement      Kind = "element"
	KindProperties   Kind = "properties"
	KindProperty     Kind = "property"
	KindActions      Kind = "actions"
	KindAction       Kind = "action"
	KindBus          Kind = "bus"
	KindState        Kind = "state"
	KindEventFactory Kind = "event-factory"
	KindEvent        Kind = "event"
	KindDebug        Kind = "debug"
	KindGraph        Kind = "graph"
)

// Node is the uniform interface every tree entity satisfies. A Node may
// expose only a subset of the CRUD verbs; unsupported verbs return
// BAD_COMMAND.
type Node interface {
	Name() string
	Description() string
	Kind() Kind
	Parent() Node

	// Retain increments the reference count; Release decrements it and
	// returns the resulting count so the owner can decide whether to finish
	// tearing the Node down. Both are safe to call concurrently and require
	// no external lock.
	Retain()
	Release() int32
	RefCount() int32

	// Child looks up an immediate child by exact, case-sensitive name
	// without affecting its reference count; it is the path resolver's only
	// hook into a container's internals. Leaves return (nil, false).
	Child(name string) (Node, bool)

	// Children lists immediate children in creation order, for container
	// rendering. Leaves return nil.
	Children() []Node

	Create(ctx context.Context, name, description string) (Node, error)
	Read(ctx context.Context) (string, error)
	Update(ctx context.Context, value string) error
	Delete(ctx context.Context, name string) error
	ToString(ctx context.Context) (string, error)
}

// Base implements the fields and default verb behavior every concrete kind
// shares: identity, parent back-reference, atomic refcount, and a formatter
// factory. Concrete kinds embed Base and override only the verbs their kind
// supports.
type Base struct {
	mu          sync.RWMutex
	name        string
	description string
	kind        Kind
	parent      Node
	refcount    atomic.Int32
	factory     format.Factory
}

// NewBase constructs a Base with an initial reference count of 1, the
// strong reference held by the container that creates and indexes it.
func NewBase(kind Kind, name, description string, parent Node, factory format.Factory) Base {
	b := Base{kind: kind, name: name, description: description, parent: parent, factory: factory}
	b.refcount.Store(1)
	return b
}

func (b *Base) Name() string { return b.name }

func (b *Base) Description() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.description
}

func (b *Base) setDescription(d string) {
	b.mu.Lock()
	b.description = d
	b.mu.Unlock()
}

func (b *Base) Kind() Kind      { return b.kind }
func (b *Base) Parent() Node    { return b.parent }
func (b *Base) Retain()         { b.refcount.Add(1) }
func (b *Base) Release() int32  { return b.refcount.Add(-1) }
func (b *Base) RefCount() int32 { return b.refcount.Load() }

func (b *Base) Formatter() format.Formatter { return b.factory() }

func (b *Base) Child(name string) (Node, bool) { return nil, false }
func (b *Base) Children() []Node               { return nil }

func (b *Base) Create(ctx context.Context, name, description string) (Node, error) {
	return nil, nodeerrors.BadCommand
}
func (b *Base) Read(ctx context.Context) (string, error) { return "", nodeerrors.BadCommand }
func (b *Base) Update(ctx context.Context, value string) error {
	return nodeerrors.BadCommand
}
func (b *Base) Delete(ctx context.Context, name string) error { return nodeerrors.BadCommand }
func (b *Base) ToString(ctx context.Context) (string, error)  { return "", nodeerrors.BadCommand }

// renderWith opens a fresh Formatter from factory, lets fn populate it, and
// generates the final text. Used by every kind's Read/ToString
// implementation; a Formatter is never shared across responses.
func renderWith(factory format.Factory, fn func(f format.Formatter)) (string, error) {
	f := factory()
	fn(f)
	return f.Generate()
}

// childIndex is the name-indexed, creation-ordered collection backing every
// container kind. One lock instance serializes create/delete/iteration for
// that container.
type childIndex struct {
	mu    sync.RWMutex
	order []string
	items map[string]Node
}

func newChildIndex() *childIndex {
	return &childIndex{items: make(map[string]Node)}
}

func (c *childIndex) get(name string) (Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.items[name]
	return n, ok
}

// insert installs n under its own Name(), failing with ExistingResource if
// a sibling already holds that name. Exactly one concurrent insert for a
// given name succeeds.
func (c *childIndex) insert(n Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[n.Name()]; exists {
		return nodeerrors.ExistingResource
	}
	c.items[n.Name()] = n
	c.order = append(c.order, n.Name())
	return nil
}

// remove deletes name from the index and returns the removed Node so the
// caller can release the container's owning reference to it.
func (c *childIndex) remove(name string) (Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[name]
	if !ok {
		return nil, nodeerrors.NoResource
	}
	delete(c.items, name)
	for i, nm := range c.order {
		if nm == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return n, nil
}

func (c *childIndex) list() []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Node, 0, len(c.order))
	for _, nm := range c.order {
		out = append(out, c.items[nm])
	}
	return out
}

// withRLock runs fn while holding the container's read lock, for callers
// (e.g. the /pipelines/status fast path) that must keep the whole
// collection stable across a multi-Node iteration.
func (c *childIndex) withRLock(fn func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn()
}

// Resolve walks path from root, one segment at a time, returning the final
// Node with its reference count already incremented for the caller. Empty
// segments (double slashes, a trailing slash) are ignored; a missing
// segment yields NO_RESOURCE.
func Resolve(path string, root Node) (Node, error) {
	if root == nil {
		return nil, nodeerrors.NullArgument
	}
	cur := root
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return nil, nodeerrors.BadCommand
		}
		child, ok := cur.Child(decoded)
		if !ok {
			return nil, nodeerrors.NoResource
		}
		cur = child
	}
	cur.Retain()
	return cur, nil
}
