// Package parser translates a textual command line — in either of two
// grammars — into a resolved Node and a dispatched verb, shared verbatim by
// the TCP and HTTP servers. It never executes side effects
// itself; it only resolves a path through the node package and calls the
// resulting Node's verb method.
package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/cfsbhawkins/gstd-1.x/errors"
	"github.com/cfsbhawkins/gstd-1.x/node"
)

// Parser holds the root Node (the Session) every command resolves against.
type Parser struct {
	root node.Node
}

// New returns a Parser that resolves paths from root.
func New(root node.Node) *Parser {
	return &Parser{root: root}
}

// Execute runs one command line and returns its result code plus any
// rendered JSON output. line == nil models a NULL command string
// (NULL_ARGUMENT); an empty or whitespace-only line is BAD_COMMAND, checked
// before any tokenization touches the string.
func (p *Parser) Execute(ctx context.Context, line *string) (errors.Code, string) {
	if line == nil {
		return errors.NullArgument, ""
	}
	trimmed := strings.TrimSpace(strings.Trim(*line, "\x00"))
	if trimmed == "" {
		return errors.BadCommand, ""
	}

	fields := strings.Fields(trimmed)
	head, rest := fields[0], fields[1:]

	switch head {
	case "create", "read", "update", "delete":
		return p.dispatchURI(ctx, head, rest)
	default:
		exp, ok := expandShorthand(head, rest)
		if !ok {
			return errors.BadCommand, ""
		}
		if exp.err != errors.EOK {
			return exp.err, ""
		}
		return p.run(ctx, exp)
	}
}

// expansion is the normalized (verb, path, name, operand) intent the URI
// grammar already is and the shorthand grammar expands to.
type expansion struct {
	verb    string
	path    string
	name    string
	operand []string
	err     errors.Code // set to non-EOK by a shorthand expander that rejects its own arguments
}

func (p *Parser) dispatchURI(ctx context.Context, verb string, rest []string) (errors.Code, string) {
	if len(rest) == 0 {
		return errors.BadValue, ""
	}
	path := rest[0]
	operand := rest[1:]

	switch verb {
	case "create", "delete":
		if len(operand) == 0 {
			return errors.BadValue, ""
		}
		return p.run(ctx, expansion{verb: verb, path: path, name: operand[0], operand: operand[1:]})
	case "read":
		return p.run(ctx, expansion{verb: verb, path: path})
	case "update":
		if len(operand) == 0 {
			return errors.BadValue, ""
		}
		return p.run(ctx, expansion{verb: verb, path: path, operand: operand})
	default:
		return errors.BadCommand, ""
	}
}

func (p *Parser) run(ctx context.Context, e expansion) (errors.Code, string) {
	n, err := node.Resolve(e.path, p.root)
	if err != nil {
		return errors.CodeOf(err), ""
	}
	defer n.Release()

	switch e.verb {
	case "create":
		// Unlike Resolve, Create does not hand the caller a separately
		// counted reference: the returned Node carries the single reference
		// its container holds for as long as the Node stays indexed, to be
		// released by the matching delete.
		child, err := n.Create(ctx, e.name, strings.Join(e.operand, " "))
		if err != nil {
			return errors.CodeOf(err), ""
		}
		out, err := child.Read(ctx)
		if err != nil {
			return errors.CodeOf(err), ""
		}
		return errors.EOK, out
	case "read":
		out, err := n.Read(ctx)
		if err != nil {
			return errors.CodeOf(err), ""
		}
		return errors.EOK, out
	case "update":
		if err := n.Update(ctx, strings.Join(e.operand, " ")); err != nil {
			return errors.CodeOf(err), ""
		}
		return errors.EOK, ""
	case "delete":
		if err := n.Delete(ctx, e.name); err != nil {
			return errors.CodeOf(err), ""
		}
		return errors.EOK, ""
	default:
		return errors.BadCommand, ""
	}
}

// shorthandExpander builds an expansion from a shorthand verb's argument
// list, or reports rejection via exp.err.
type shorthandExpander func(args []string) expansion

// shorthandTable maps each <domain>_<action> verb to its URI-form
// equivalent.
var shorthandTable = map[string]shorthandExpander{
	"pipeline_create": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "create", path: "/pipelines", name: a[0], operand: a[1:]}
	},
	"pipeline_delete": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "delete", path: "/pipelines", name: a[0]}
	},
	"pipeline_play":  stateShorthand("playing"),
	"pipeline_pause": stateShorthand("paused"),
	"pipeline_stop":  stateShorthand("null"),
	"list_pipelines": func(a []string) expansion {
		return expansion{verb: "read", path: "/pipelines"}
	},
	"list_elements": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "read", path: fmt.Sprintf("/pipelines/%s/elements", a[0])}
	},
	"element_get": func(a []string) expansion {
		if len(a) < 3 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "read", path: fmt.Sprintf("/pipelines/%s/elements/%s/properties/%s", a[0], a[1], a[2])}
	},
	"element_set": func(a []string) expansion {
		if len(a) < 4 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "update", path: fmt.Sprintf("/pipelines/%s/elements/%s/properties/%s", a[0], a[1], a[2]), operand: a[3:]}
	},
	"bus_read": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "read", path: fmt.Sprintf("/pipelines/%s/bus", a[0])}
	},
	"bus_filter": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "update", path: fmt.Sprintf("/pipelines/%s/bus/filter", a[0]), operand: a[1:]}
	},
	"bus_timeout": func(a []string) expansion {
		if len(a) < 2 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "update", path: fmt.Sprintf("/pipelines/%s/bus/timeout", a[0]), operand: a[1:]}
	},
	"signal_connect": func(a []string) expansion {
		if len(a) < 3 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "update", path: fmt.Sprintf("/pipelines/%s/elements/%s/actions/%s", a[0], a[1], a[2]), operand: a[3:]}
	},
	"signal_timeout": func(a []string) expansion {
		// No per-signal timeout Node exists in this tree; acknowledge the
		// request without side effects.
		if len(a) < 2 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "read", path: "/pipelines"}
	},
	"action_emit": func(a []string) expansion {
		if len(a) < 3 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "update", path: fmt.Sprintf("/pipelines/%s/elements/%s/actions/%s", a[0], a[1], a[2]), operand: a[3:]}
	},
	"debug_enable": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "update", path: "/debug/enable", operand: a}
	},
	"debug_color": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "update", path: "/debug/color", operand: a}
	},
	"debug_threshold": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "update", path: "/debug/threshold", operand: a}
	},
	"debug_reset": func(a []string) expansion {
		return expansion{verb: "update", path: "/debug", operand: []string{"reset"}}
	},
	"event_eos": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "create", path: fmt.Sprintf("/pipelines/%s/event", a[0]), name: "eos"}
	},
	"event_flush_start": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "create", path: fmt.Sprintf("/pipelines/%s/event", a[0]), name: "flush-start"}
	},
	"event_flush_stop": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "create", path: fmt.Sprintf("/pipelines/%s/event", a[0]), name: "flush-stop"}
	},
	"event_seek": func(a []string) expansion {
		if len(a) < 3 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "create", path: fmt.Sprintf("/pipelines/%s/event", a[0]), name: "seek", operand: a[1:3]}
	},
	"pipeline_graph": func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "read", path: fmt.Sprintf("/pipelines/%s/graph", a[0])}
	},
}

func stateShorthand(state string) shorthandExpander {
	return func(a []string) expansion {
		if len(a) < 1 {
			return expansion{err: errors.BadValue}
		}
		return expansion{verb: "update", path: fmt.Sprintf("/pipelines/%s/state", a[0]), operand: []string{state}}
	}
}

// expandShorthand looks up head in the dispatch table and applies it to
// args. ok is false for an unrecognized shorthand verb (BAD_COMMAND at the
// call site).
func expandShorthand(head string, args []string) (expansion, bool) {
	fn, ok := shorthandTable[head]
	if !ok {
		return expansion{}, false
	}
	return fn(args), true
}
