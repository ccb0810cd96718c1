package node

import (
	"context"

	nodeerrors "github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/format"
)

// Graph is a leaf Node exposing the pipeline_graph verb: a DOT-format
// rendering of the current element graph.
type Graph struct {
	Base

	eng    engine.Engine
	handle engine.Handle
}

func newGraph(parent Node, eng engine.Engine, handle engine.Handle, factory format.Factory) *Graph {
	return &Graph{
		Base:   NewBase(KindGraph, "graph", "pipeline element graph (DOT)", parent, factory),
		eng:    eng,
		handle: handle,
	}
}

func (g *Graph) Read(ctx context.Context) (string, error) {
	dot, err := g.eng.Graph(ctx, g.handle)
	if err != nil {
		return "", nodeerrors.WrapFatal(err, "graph", "render")
	}
	return renderWith(g.factory, func(f format.Formatter) {
		f.BeginObject()
		f.SetMemberName("name")
		f.SetValue(g.Name())
		f.SetMemberName("dot")
		f.SetValue(dot)
		f.EndObject()
	})
}

func (g *Graph) ToString(ctx context.Context) (string, error) { return g.Read(ctx) }
