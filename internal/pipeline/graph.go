// Package pipeline runs the data-processing and feature-engineering stages
// as a graph of named nodes over in-memory tables.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firerisk-cli/internal/table"
)

// NodeFunc transforms the node's inputs, in declaration order, into its
// output. It may modify its inputs.
type NodeFunc func(ctx context.Context, in []*table.Table) (*table.Table, error)

// Node is one step of a pipeline.
type Node struct {
	Name   string
	Inputs []string
	Output string
	Func   NodeFunc
}

// Pipeline is a named list of nodes.
type Pipeline struct {
	Name  string
	Nodes []Node
}

// Combine concatenates pipelines into one named name.
func Combine(name string, pipes ...Pipeline) Pipeline {
	out := Pipeline{Name: name}
	for _, p := range pipes {
		out.Nodes = append(out.Nodes, p.Nodes...)
	}
	return out
}

// Order returns the nodes in dependency order. Among nodes whose inputs are
// ready, declaration order wins, so a pipeline declared in a valid order runs
// as declared. Inputs no node produces are expected from the caller.
func (p Pipeline) Order() ([]Node, error) {
	producer := make(map[string]string, len(p.Nodes))
	names := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if n.Name == "" || n.Output == "" || n.Func == nil {
			return nil, eris.Errorf("pipeline: node %q is incomplete", n.Name)
		}
		if names[n.Name] {
			return nil, eris.Errorf("pipeline: duplicate node %q", n.Name)
		}
		names[n.Name] = true
		if other, ok := producer[n.Output]; ok {
			return nil, eris.Errorf("pipeline: %s is produced by both %s and %s", n.Output, other, n.Name)
		}
		producer[n.Output] = n.Name
	}

	ready := func(n Node, done map[string]bool) bool {
		for _, in := range n.Inputs {
			if _, produced := producer[in]; produced && !done[in] {
				return false
			}
		}
		return true
	}

	done := make(map[string]bool, len(p.Nodes))
	placed := make([]bool, len(p.Nodes))
	order := make([]Node, 0, len(p.Nodes))
	for len(order) < len(p.Nodes) {
		progressed := false
		for i, n := range p.Nodes {
			if placed[i] || !ready(n, done) {
				continue
			}
			placed[i] = true
			done[n.Output] = true
			order = append(order, n)
			progressed = true
			break
		}
		if !progressed {
			return nil, eris.Errorf("pipeline: %s has a dependency cycle", p.Name)
		}
	}
	return order, nil
}

// Until truncates an ordered node list after the node named name.
func Until(nodes []Node, name string) ([]Node, error) {
	if name == "" {
		return nodes, nil
	}
	for i, n := range nodes {
		if n.Name == name {
			return nodes[:i+1], nil
		}
	}
	return nil, eris.Errorf("pipeline: unknown node %q", name)
}

// lastUse maps each dataset to the index of the last node consuming it.
func lastUse(nodes []Node) map[string]int {
	last := map[string]int{}
	for i, n := range nodes {
		for _, in := range n.Inputs {
			last[in] = i
		}
	}
	return last
}

// Terminal returns the outputs no node in nodes consumes, in node order.
func Terminal(nodes []Node) []string {
	consumed := map[string]bool{}
	for _, n := range nodes {
		for _, in := range n.Inputs {
			consumed[in] = true
		}
	}
	var out []string
	for _, n := range nodes {
		if !consumed[n.Output] {
			out = append(out, n.Output)
		}
	}
	return out
}

// RawInputs returns the inputs no node in nodes produces, sorted by first use.
func RawInputs(nodes []Node) []string {
	produced := map[string]bool{}
	for _, n := range nodes {
		produced[n.Output] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, n := range nodes {
		for _, in := range n.Inputs {
			if !produced[in] && !seen[in] {
				seen[in] = true
				out = append(out, in)
			}
		}
	}
	return out
}

// Only returns a pipeline holding just the named nodes of p, in p's order.
func Only(p Pipeline, name string, nodes ...string) (Pipeline, error) {
	want := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		want[n] = true
	}
	out := Pipeline{Name: name}
	for _, n := range p.Nodes {
		if want[n.Name] {
			out.Nodes = append(out.Nodes, n)
			delete(want, n.Name)
		}
	}
	for _, n := range nodes {
		if want[n] {
			return Pipeline{}, eris.Errorf("pipeline: %s has no node %q", p.Name, n)
		}
	}
	return out, nil
}
