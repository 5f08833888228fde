// Package memory provides an in-memory graph store.
//
// The store keeps the whole graph in process memory with no persistence.
// Write transactions operate on a deep copy of the graph and swap it in on
// commit, so a failed transaction leaves no trace and readers never observe
// partial writes. Intended for tests and single-node deployments where
// durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

type edgeSet map[string]map[graph.NodeRef]map[string]any

// state is one immutable-once-published snapshot of the graph.
type state struct {
	nodes map[graph.NodeRef]map[string]any
	// out and in are adjacency indexes: node -> edge type -> peer -> props.
	// Every edge appears in both, keyed by its From side in out and its To
	// side in in.
	out map[graph.NodeRef]edgeSet
	in  map[graph.NodeRef]edgeSet
}

func newState() *state {
	return &state{
		nodes: make(map[graph.NodeRef]map[string]any),
		out:   make(map[graph.NodeRef]edgeSet),
		in:    make(map[graph.NodeRef]edgeSet),
	}
}

func (s *state) clone() *state {
	c := newState()
	for ref, props := range s.nodes {
		c.nodes[ref] = cloneProps(props)
	}
	for ref, es := range s.out {
		c.out[ref] = cloneEdgeSet(es)
	}
	for ref, es := range s.in {
		c.in[ref] = cloneEdgeSet(es)
	}
	return c
}

func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	c := make(map[string]any, len(props))
	for k, v := range props {
		c[k] = v
	}
	return c
}

func cloneEdgeSet(es edgeSet) edgeSet {
	c := make(edgeSet, len(es))
	for edgeType, peers := range es {
		cp := make(map[graph.NodeRef]map[string]any, len(peers))
		for peer, props := range peers {
			cp[peer] = cloneProps(props)
		}
		c[edgeType] = cp
	}
	return c
}

// Store is the in-memory graph.Store implementation.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// View implements graph.Store. Write calls through the Tx fail.
func (s *Store) View(ctx context.Context, fn func(tx graph.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{state: s.state})
}

// Update implements graph.Store. The transaction mutates a private copy and
// publishes it only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx graph.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(&tx{state: next, writable: true}); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Close implements graph.Store. It is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

type tx struct {
	state    *state
	writable bool
}

func (t *tx) GetNode(ref graph.NodeRef) (*graph.Node, bool, error) {
	props, ok := t.state.nodes[ref]
	if !ok {
		return nil, false, nil
	}
	return &graph.Node{Label: ref.Label, Key: ref.Key, Props: cloneProps(props)}, true, nil
}

func (t *tx) FindNodes(label string, pred graph.Predicate) ([]*graph.Node, error) {
	var nodes []*graph.Node
	for ref, props := range t.state.nodes {
		if ref.Label != label {
			continue
		}
		if pred != nil && !pred(props) {
			continue
		}
		nodes = append(nodes, &graph.Node{Label: ref.Label, Key: ref.Key, Props: cloneProps(props)})
	}
	return nodes, nil
}

func (t *tx) Edges(ref graph.NodeRef, edgeType string, dir graph.Direction) ([]*graph.Edge, error) {
	index := t.state.out
	if dir == graph.In {
		index = t.state.in
	}
	var edges []*graph.Edge
	for peer, props := range index[ref][edgeType] {
		e := &graph.Edge{Type: edgeType, Props: cloneProps(props)}
		if dir == graph.Out {
			e.From, e.To = ref, peer
		} else {
			e.From, e.To = peer, ref
		}
		edges = append(edges, e)
	}
	return edges, nil
}

func (t *tx) Neighbors(ref graph.NodeRef, edgeType string, dir graph.Direction, label string) ([]*graph.Node, error) {
	index := t.state.out
	if dir == graph.In {
		index = t.state.in
	}
	var nodes []*graph.Node
	for peer := range index[ref][edgeType] {
		if label != "" && peer.Label != label {
			continue
		}
		props, ok := t.state.nodes[peer]
		if !ok {
			continue
		}
		nodes = append(nodes, &graph.Node{Label: peer.Label, Key: peer.Key, Props: cloneProps(props)})
	}
	return nodes, nil
}

func (t *tx) Reachable(ref graph.NodeRef, edgeType string, dir graph.Direction) (map[string]bool, error) {
	index := t.state.out
	if dir == graph.In {
		index = t.state.in
	}
	reached := make(map[string]bool)
	frontier := []graph.NodeRef{ref}
	seen := map[graph.NodeRef]bool{ref: true}
	for len(frontier) > 0 {
		current := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for peer := range index[current][edgeType] {
			if seen[peer] {
				continue
			}
			seen[peer] = true
			reached[peer.Key] = true
			frontier = append(frontier, peer)
		}
	}
	return reached, nil
}

func (t *tx) CreateNode(node *graph.Node) error {
	if !t.writable {
		return errReadOnly
	}
	ref := node.Ref()
	if _, ok := t.state.nodes[ref]; ok {
		return domain.AlreadyExists(node.Label, node.Key)
	}
	t.state.nodes[ref] = cloneProps(node.Props)
	return nil
}

func (t *tx) SetProps(ref graph.NodeRef, props map[string]any) error {
	if !t.writable {
		return errReadOnly
	}
	existing, ok := t.state.nodes[ref]
	if !ok {
		return domain.NotFound(ref.Label, ref.Key)
	}
	if existing == nil {
		existing = make(map[string]any)
		t.state.nodes[ref] = existing
	}
	for k, v := range props {
		if v == nil {
			delete(existing, k)
			continue
		}
		existing[k] = v
	}
	return nil
}

func (t *tx) Increment(ref graph.NodeRef, prop string, delta int64) (int64, error) {
	if !t.writable {
		return 0, errReadOnly
	}
	existing, ok := t.state.nodes[ref]
	if !ok {
		return 0, domain.NotFound(ref.Label, ref.Key)
	}
	var current int64
	switch v := existing[prop].(type) {
	case nil:
	case int64:
		current = v
	case int:
		current = int64(v)
	default:
		return 0, domain.InvalidArgument("property %q of %s %q is not an integer", prop, ref.Label, ref.Key)
	}
	current += delta
	if existing == nil {
		existing = make(map[string]any)
		t.state.nodes[ref] = existing
	}
	existing[prop] = current
	return current, nil
}

func (t *tx) DeleteNode(ref graph.NodeRef) error {
	if !t.writable {
		return errReadOnly
	}
	delete(t.state.nodes, ref)
	for edgeType, peers := range t.state.out[ref] {
		for peer := range peers {
			delete(t.state.in[peer][edgeType], ref)
		}
	}
	for edgeType, peers := range t.state.in[ref] {
		for peer := range peers {
			delete(t.state.out[peer][edgeType], ref)
		}
	}
	delete(t.state.out, ref)
	delete(t.state.in, ref)
	return nil
}

func (t *tx) CreateEdge(edge *graph.Edge) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.state.nodes[edge.From]; !ok {
		return domain.NotFound(edge.From.Label, edge.From.Key)
	}
	if _, ok := t.state.nodes[edge.To]; !ok {
		return domain.NotFound(edge.To.Label, edge.To.Key)
	}
	addEdge(t.state.out, edge.From, edge.Type, edge.To, cloneProps(edge.Props))
	addEdge(t.state.in, edge.To, edge.Type, edge.From, cloneProps(edge.Props))
	return nil
}

func addEdge(index map[graph.NodeRef]edgeSet, owner graph.NodeRef, edgeType string, peer graph.NodeRef, props map[string]any) {
	es, ok := index[owner]
	if !ok {
		es = make(edgeSet)
		index[owner] = es
	}
	peers, ok := es[edgeType]
	if !ok {
		peers = make(map[graph.NodeRef]map[string]any)
		es[edgeType] = peers
	}
	peers[peer] = props
}

func (t *tx) DeleteEdge(edgeType string, from, to graph.NodeRef) error {
	if !t.writable {
		return errReadOnly
	}
	delete(t.state.out[from][edgeType], to)
	delete(t.state.in[to][edgeType], from)
	return nil
}

func (t *tx) DeleteAll() error {
	if !t.writable {
		return errReadOnly
	}
	*t.state = *newState()
	return nil
}
