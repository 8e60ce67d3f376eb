// Package graph builds and exposes the directed, edge-aggregated account
// graph that the pattern detectors operate on. Node and successor iteration
// order is insertion order, so analyses over the same batch are
// deterministic end to end.
package graph

import (
	"time"
)

// Edge aggregates every transaction observed from one account to another.
// Multi-edges are disallowed: repeated A→B transactions accumulate here.
type Edge struct {
	Source string
	Target string

	// Amount is the cumulative transferred amount.
	Amount float64

	// Count is the number of aggregated transactions.
	Count int

	// Timestamps holds each transaction's timestamp in insertion order.
	// A nil entry stands for a source value that could not be parsed.
	Timestamps []*time.Time
}

type node struct {
	out      []string // ordered distinct successors
	in       []string // ordered distinct predecessors
	outEdges map[string]*Edge
}

// Graph is a directed account graph. Built once per analysis run, read-only
// afterwards; the detectors share it concurrently without locking.
type Graph struct {
	order []string
	nodes map[string]*node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode inserts an account node if it does not already exist.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{outEdges: make(map[string]*Edge)}
	g.order = append(g.order, id)
}

// AddTransaction records one transfer from source to target, creating both
// endpoints as needed and accumulating onto an existing edge if one exists.
func (g *Graph) AddTransaction(source, target string, amount float64, ts *time.Time) {
	g.AddNode(source)
	g.AddNode(target)

	src := g.nodes[source]
	if e, ok := src.outEdges[target]; ok {
		e.Amount += amount
		e.Count++
		e.Timestamps = append(e.Timestamps, ts)
		return
	}

	src.outEdges[target] = &Edge{
		Source:     source,
		Target:     target,
		Amount:     amount,
		Count:      1,
		Timestamps: []*time.Time{ts},
	}
	src.out = append(src.out, target)
	g.nodes[target].in = append(g.nodes[target].in, source)
}

// HasNode reports whether the account exists in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all account ids in insertion order. The returned slice is
// shared; callers must not mutate it.
func (g *Graph) Nodes() []string {
	return g.order
}

// NodeCount returns the number of accounts.
func (g *Graph) NodeCount() int {
	return len(g.order)
}

// Successors returns the distinct out-neighbors of id in first-seen order.
func (g *Graph) Successors(id string) []string {
	if n, ok := g.nodes[id]; ok {
		return n.out
	}
	return nil
}

// Predecessors returns the distinct in-neighbors of id in first-seen order.
func (g *Graph) Predecessors(id string) []string {
	if n, ok := g.nodes[id]; ok {
		return n.in
	}
	return nil
}

// OutDegree returns the number of distinct out-neighbors.
func (g *Graph) OutDegree(id string) int {
	return len(g.Successors(id))
}

// InDegree returns the number of distinct in-neighbors.
func (g *Graph) InDegree(id string) int {
	return len(g.Predecessors(id))
}

// Edge returns the aggregated edge from source to target, or nil.
func (g *Graph) Edge(source, target string) *Edge {
	if n, ok := g.nodes[source]; ok {
		return n.outEdges[target]
	}
	return nil
}

// Edges returns every aggregated edge, ordered by source node insertion
// order and then by successor first-seen order.
func (g *Graph) Edges() []*Edge {
	var edges []*Edge
	for _, id := range g.order {
		n := g.nodes[id]
		for _, target := range n.out {
			edges = append(edges, n.outEdges[target])
		}
	}
	return edges
}

// EdgeCount returns the number of aggregated edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, id := range g.order {
		count += len(g.nodes[id].out)
	}
	return count
}
