package models

import "sort"

// KnowledgeGraph is the derived topic graph for a user: an undirected
// adjacency mapping with no self-loops. It is never stored authoritatively;
// it is rebuilt (or served from cache) on demand.
type KnowledgeGraph struct {
	Topics    []string            `json:"topics"`
	Adjacency map[string][]string `json:"adjacency"`
}

// Symmetrize enforces the undirected-graph invariants in place: if a lists
// b then b lists a, no topic lists itself, no edges to topics outside the
// topic set, and neighbor lists are sorted and duplicate-free.
func (g *KnowledgeGraph) Symmetrize() {
	if g.Adjacency == nil {
		g.Adjacency = make(map[string][]string)
	}
	known := make(map[string]struct{}, len(g.Topics))
	for _, t := range g.Topics {
		known[t] = struct{}{}
	}
	edges := make(map[string]map[string]struct{})
	add := func(a, b string) {
		if edges[a] == nil {
			edges[a] = make(map[string]struct{})
		}
		edges[a][b] = struct{}{}
	}
	for a, neighbors := range g.Adjacency {
		if _, ok := known[a]; !ok {
			continue
		}
		for _, b := range neighbors {
			if a == b {
				continue
			}
			if _, ok := known[b]; !ok {
				continue
			}
			add(a, b)
			add(b, a)
		}
	}
	out := make(map[string][]string, len(g.Topics))
	for _, t := range g.Topics {
		list := make([]string, 0, len(edges[t]))
		for n := range edges[t] {
			list = append(list, n)
		}
		sort.Strings(list)
		out[t] = list
	}
	g.Adjacency = out
}
