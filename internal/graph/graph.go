// Package graph is a small state-machine executor: named nodes connected
// by edges, with conditional routing and optional per-node checkpointing.
// A graph is built once, compiled, and then run concurrently for any
// number of independent threads.
package graph

import (
	"context"
	"fmt"
)

// End is the terminal edge target.
const End = "__end__"

// NodeFunc transforms state. Nodes receive state by value and return the
// updated value; the executor makes one node's output visible to the next
// before it starts.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc picks the next node id (or End) from the current state.
type RouterFunc[S any] func(state S) string

// Graph is a mutable builder. Build on a single goroutine, then Compile.
type Graph[S any] struct {
	nodes   map[string]NodeFunc[S]
	edges   map[string]string
	routers map[string]RouterFunc[S]
	entry   string
}

func New[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:   make(map[string]NodeFunc[S]),
		edges:   make(map[string]string),
		routers: make(map[string]RouterFunc[S]),
	}
}

// AddNode registers a named node. Returns the graph for chaining.
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	g.nodes[id] = fn
	return g
}

// AddEdge connects from -> to unconditionally. The target may be End.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges[from] = to
	return g
}

// AddConditionalEdge routes out of a node through a router function
// evaluated against the state at runtime. A conditional edge takes
// precedence over a simple edge from the same node.
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S]) *Graph[S] {
	g.routers[from] = router
	return g
}

// SetEntry designates the entry node.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.entry = id
	return g
}

// Compile validates the topology and returns an immutable executable graph.
func (g *Graph[S]) Compile() (*Compiled[S], error) {
	if g.entry == "" {
		return nil, fmt.Errorf("graph: entry point not set")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("graph: entry node %q not found", g.entry)
	}

	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("graph: edge from unknown node %q", from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("graph: edge %q -> unknown node %q", from, to)
			}
		}
	}
	for from := range g.routers {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("graph: conditional edge from unknown node %q", from)
		}
	}

	// Every node needs a way forward.
	for id := range g.nodes {
		if _, ok := g.edges[id]; ok {
			continue
		}
		if _, ok := g.routers[id]; ok {
			continue
		}
		return nil, fmt.Errorf("graph: node %q has no outgoing edge", id)
	}

	nodes := make(map[string]NodeFunc[S], len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}
	edges := make(map[string]string, len(g.edges))
	for from, to := range g.edges {
		edges[from] = to
	}
	routers := make(map[string]RouterFunc[S], len(g.routers))
	for from, r := range g.routers {
		routers[from] = r
	}

	return &Compiled[S]{
		nodes:   nodes,
		edges:   edges,
		routers: routers,
		entry:   g.entry,
	}, nil
}
