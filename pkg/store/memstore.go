package store

import (
	"context"
	"sort"
	"sync"

	"github.com/japaniel/lexigraph/pkg/graph"
	"github.com/japaniel/lexigraph/pkg/lexicon"
)

const (
	LabelLemma = "Lemma"
	LabelSense = "Sense"
)

// Node is a stored graph node.
type Node struct {
	ID    int
	Label string
	Name  string
	Gloss string // Sense only
}

// Edge is a stored relationship. Seq increases with every write so callers
// can check the order in which relationships were asserted.
type Edge struct {
	Seq  int
	From int
	To   int
	Type string
}

// MemStore is an in-memory property graph that follows the MERGE/CREATE
// semantics of the Cypher statements produced by graph.Mutation.
type MemStore struct {
	mu     sync.Mutex
	nextID int
	seq    int
	nodes  map[int]Node
	lemmas map[string]int
	senses map[graph.SenseKey][]int
	edges  []Edge

	// FailOn, when set, is consulted before each mutation; a non-nil error
	// aborts that mutation without changing the graph.
	FailOn func(graph.Mutation) error
}

func NewMemStore() *MemStore {
	return &MemStore{
		nodes:  make(map[int]Node),
		lemmas: make(map[string]int),
		senses: make(map[graph.SenseKey][]int),
	}
}

func (s *MemStore) Apply(ctx context.Context, m graph.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOn != nil {
		if err := s.FailOn(m); err != nil {
			return err
		}
	}

	switch m.Op {
	case graph.OpLemmaSense:
		l := s.mergeLemma(m.Lemma)
		var ss []int
		if m.CreateSense {
			ss = []int{s.createSense(m.Source)}
		} else {
			ss = s.mergeSense(m.Source)
		}
		for _, id := range ss {
			s.relate(l, id, lexicon.HasSense, m.MergeEdge)
		}
	case graph.OpSenseOption:
		l := s.mergeLemma(m.Lemma)
		for _, id := range s.mergeSense(m.Source) {
			s.relate(id, l, m.RelType, m.MergeEdge)
		}
	case graph.OpSenseLink:
		sources := s.mergeSense(m.Source)
		targets := s.mergeSense(m.Target)
		for _, from := range sources {
			for _, to := range targets {
				s.relate(from, to, m.RelType, m.MergeEdge)
			}
		}
	}
	return nil
}

func (s *MemStore) Close(ctx context.Context) error { return nil }

func (s *MemStore) mergeLemma(name string) int {
	if id, ok := s.lemmas[name]; ok {
		return id
	}
	s.nextID++
	s.nodes[s.nextID] = Node{ID: s.nextID, Label: LabelLemma, Name: name}
	s.lemmas[name] = s.nextID
	return s.nextID
}

// mergeSense matches every Sense with the key, as MERGE does when duplicates exist.
func (s *MemStore) mergeSense(k graph.SenseKey) []int {
	if ids := s.senses[k]; len(ids) > 0 {
		return ids
	}
	return []int{s.createSense(k)}
}

func (s *MemStore) createSense(k graph.SenseKey) int {
	s.nextID++
	s.nodes[s.nextID] = Node{ID: s.nextID, Label: LabelSense, Name: k.Name, Gloss: k.Gloss}
	s.senses[k] = append(s.senses[k], s.nextID)
	return s.nextID
}

func (s *MemStore) relate(from, to int, typ string, merge bool) {
	if merge {
		for _, e := range s.edges {
			if e.From == from && e.To == to && e.Type == typ {
				return
			}
		}
	}
	s.seq++
	s.edges = append(s.edges, Edge{Seq: s.seq, From: from, To: to, Type: typ})
}

// CountNodes returns the number of nodes with the label.
func (s *MemStore) CountNodes(label string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, node := range s.nodes {
		if node.Label == label {
			n++
		}
	}
	return n
}

// CountEdges returns the number of relationships, or those of one type when typ is not empty.
func (s *MemStore) CountEdges(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typ == "" {
		return len(s.edges)
	}
	n := 0
	for _, e := range s.edges {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// EdgeView is a relationship with its endpoint names resolved.
type EdgeView struct {
	Seq      int
	From, To Node
	Type     string
}

// Edges returns every relationship in write order.
func (s *MemStore) Edges() []EdgeView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EdgeView, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, EdgeView{Seq: e.Seq, From: s.nodes[e.From], To: s.nodes[e.To], Type: e.Type})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Find returns the nodes with the label and name.
func (s *MemStore) Find(label, name string) []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Node
	for _, n := range s.nodes {
		if n.Label == label && n.Name == name {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
