// Package graph holds a typed ffmpeg filter graph. Nodes are filter chains joined by
// named labels; Render serializes the whole graph once into the -filter_complex grammar.
package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrConstruction is matched by every ConstructionError.
var ErrConstruction = errors.New("graph construction failed")

// ConstructionError reports a broken label invariant.
type ConstructionError struct {
	Label  Label
	Reason string
}

func (e *ConstructionError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("graph: %s", e.Reason)
	}
	return fmt.Sprintf("graph: label %s: %s", e.Label, e.Reason)
}

func (e *ConstructionError) Is(target error) bool { return target == ErrConstruction }

// Label names one signal edge. Labels that contain a colon (e.g. "0:v") refer to
// input streams and are never defined by a node.
type Label string

// Stream returns the label of an input stream, e.g. Stream(2, "a") is "2:a".
func Stream(input int, kind string) Label {
	return Label(strconv.Itoa(input) + ":" + kind)
}

// IsStream reports whether the label refers to an input stream.
func (l Label) IsStream() bool { return strings.Contains(string(l), ":") }

func (l Label) String() string { return "[" + string(l) + "]" }

// Arg is one filter option. An empty Key renders a positional value.
type Arg struct {
	Key   string
	Value string
}

// Filter is a single filter invocation like xfade=transition=fade:duration=0.500.
type Filter struct {
	Name string
	Args []Arg
}

// F builds a Filter.
func F(name string, args ...Arg) Filter {
	return Filter{Name: name, Args: args}
}

// KV builds a keyed option.
func KV(key, value string) Arg { return Arg{Key: key, Value: value} }

// Pos builds a positional option.
func Pos(value string) Arg { return Arg{Value: value} }

// Seconds formats a time value with millisecond precision.
func Seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Number formats a scalar with the shortest exact representation.
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Quote wraps a value in filtergraph single quotes.
func Quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

// EscapePath escapes a file path for use as a filter option value.
func EscapePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}

// EscapeGraph escapes an already option-escaped value for the filtergraph
// parser, which strips one level of backslashes before options are split.
func EscapeGraph(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '\\', '\'', '[', ']', ',', ';':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, 0, len(f.Args))
	for _, a := range f.Args {
		if a.Key == "" {
			parts = append(parts, a.Value)
			continue
		}
		parts = append(parts, a.Key+"="+a.Value)
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Node is a linear chain of filters with labeled inputs and outputs.
type Node struct {
	Inputs  []Label
	Filters []Filter
	Outputs []Label
}

func (n Node) String() string {
	var b strings.Builder
	for _, in := range n.Inputs {
		b.WriteString(in.String())
	}
	for i, f := range n.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range n.Outputs {
		b.WriteString(out.String())
	}
	return b.String()
}

// Graph accumulates nodes while enforcing that every label is defined once and
// consumed at most once.
type Graph struct {
	nodes    []Node
	defined  map[Label]bool
	consumed map[Label]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		defined:  make(map[Label]bool),
		consumed: make(map[Label]bool),
	}
}

// Add appends a node. The graph is left untouched when an invariant would break.
func (g *Graph) Add(inputs, outputs []Label, filters ...Filter) error {
	if len(filters) == 0 {
		return &ConstructionError{Reason: "node has no filters"}
	}
	if len(outputs) == 0 {
		return &ConstructionError{Reason: "node has no outputs"}
	}

	seen := make(map[Label]bool, len(inputs))
	for _, in := range inputs {
		if in == "" {
			return &ConstructionError{Reason: "empty input label"}
		}
		if seen[in] || g.consumed[in] {
			return &ConstructionError{Label: in, Reason: "already consumed"}
		}
		if !in.IsStream() && !g.defined[in] {
			return &ConstructionError{Label: in, Reason: "consumed before it is defined"}
		}
		seen[in] = true
	}
	for _, out := range outputs {
		if out == "" {
			return &ConstructionError{Reason: "empty output label"}
		}
		if out.IsStream() {
			return &ConstructionError{Label: out, Reason: "input stream labels cannot be redefined"}
		}
		if g.defined[out] || seen[out] {
			return &ConstructionError{Label: out, Reason: "already defined"}
		}
	}

	for _, in := range inputs {
		g.consumed[in] = true
	}
	for _, out := range outputs {
		g.defined[out] = true
	}
	g.nodes = append(g.nodes, Node{
		Inputs:  append([]Label(nil), inputs...),
		Filters: append([]Filter(nil), filters...),
		Outputs: append([]Label(nil), outputs...),
	})
	return nil
}

// Chain is Add for the common single-input, single-output case.
func (g *Graph) Chain(in, out Label, filters ...Filter) error {
	return g.Add([]Label{in}, []Label{out}, filters...)
}

// Defined reports whether a node produces the label.
func (g *Graph) Defined(l Label) bool { return g.defined[l] }

// Open returns the defined labels nothing consumes yet, in definition order.
// These are the labels a caller maps to outputs.
func (g *Graph) Open() []Label {
	var open []Label
	for _, n := range g.nodes {
		for _, out := range n.Outputs {
			if !g.consumed[out] {
				open = append(open, out)
			}
		}
	}
	return open
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Render serializes the graph into semicolon separated chains.
func (g *Graph) Render() string {
	parts := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ";")
}
