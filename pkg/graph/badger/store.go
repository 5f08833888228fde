// Package badger provides a persistent graph store backed by BadgerDB.
//
// BadgerDB gives the store crash-safe durability (WAL based), snapshot
// isolation for reads and serializable transactions for writes, which is
// exactly what the read-then-write invariants of the graph contract need:
// uniqueness checks and cycle checks hold without any locking above the
// database. Suitable for single-node production deployments; the graph
// lives in one Badger instance on local disk.
package badger

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/castellan-io/castellan/internal/logger"
	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/graph"
)

// conflictRetries bounds how often a write transaction is re-run after an
// optimistic-concurrency conflict before giving up.
const conflictRetries = 5

// Config holds the BadgerDB store configuration.
type Config struct {
	// Path is the directory holding the database files. Created if missing.
	Path string

	// InMemory runs Badger without touching disk. Used by tests.
	InMemory bool

	// BlockCacheSizeMB and IndexCacheSizeMB size Badger's internal caches.
	// Zero selects the defaults (64MB and 32MB). The graph workload is many
	// small keys, so modest caches go a long way.
	BlockCacheSizeMB int64
	IndexCacheSizeMB int64
}

// Store is the BadgerDB graph.Store implementation.
type Store struct {
	db *badger.DB
}

// NewStore opens the database and returns a ready store.
//
// Write transactions run under Badger's serializable snapshot isolation.
// On a commit conflict the whole transaction function is re-executed, so
// functions passed to Update must be idempotent up to their own writes.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts = opts.WithInMemory(cfg.InMemory)
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.BackendUnavailable(err, "opening badger database at %s", cfg.Path)
	}

	return &Store{db: db}, nil
}

// View implements graph.Store.
func (s *Store) View(ctx context.Context, fn func(tx graph.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(btx *badger.Txn) error {
		return fn(&tx{txn: btx})
	})
	return translate(err)
}

// Update implements graph.Store. Conflicting transactions are retried a
// bounded number of times before failing with BackendUnavailable.
func (s *Store) Update(ctx context.Context, fn func(tx graph.Tx) error) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(func(btx *badger.Txn) error {
			return fn(&tx{txn: btx})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return translate(err)
		}
		logger.Debug("badger: transaction conflict, retrying (attempt %d)", attempt+1)
	}
	return domain.BackendUnavailable(err, "transaction conflict persisted after %d retries", conflictRetries)
}

// Close implements graph.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// translate keeps domain errors and context errors intact and wraps raw
// database failures.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.BackendUnavailable(err, "graph store failure")
}

type tx struct {
	txn *badger.Txn
}

func (t *tx) getProps(key []byte) (map[string]any, bool, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var props map[string]any
	err = item.Value(func(val []byte) error {
		var derr error
		props, derr = decodeProps(val)
		return derr
	})
	if err != nil {
		return nil, false, err
	}
	return props, true, nil
}

func (t *tx) GetNode(ref graph.NodeRef) (*graph.Node, bool, error) {
	props, ok, err := t.getProps(nodeKey(ref))
	if err != nil || !ok {
		return nil, false, err
	}
	return &graph.Node{Label: ref.Label, Key: ref.Key, Props: props}, true, nil
}

func (t *tx) FindNodes(label string, pred graph.Predicate) ([]*graph.Node, error) {
	prefix := nodeLabelPrefix(label)
	it := t.txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
	defer it.Close()

	var nodes []*graph.Node
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		ref, err := parseNodeKey(item.Key())
		if err != nil {
			return nil, err
		}
		var props map[string]any
		err = item.Value(func(val []byte) error {
			var derr error
			props, derr = decodeProps(val)
			return derr
		})
		if err != nil {
			return nil, err
		}
		if pred != nil && !pred(props) {
			continue
		}
		nodes = append(nodes, &graph.Node{Label: ref.Label, Key: ref.Key, Props: props})
	}
	return nodes, nil
}

func (t *tx) Edges(ref graph.NodeRef, edgeType string, dir graph.Direction) ([]*graph.Edge, error) {
	prefix := edgeScanPrefix(ref, edgeType, dir)
	it := t.txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()

	var edges []*graph.Edge
	for it.Rewind(); it.Valid(); it.Next() {
		from, etype, to, err := parseEdgeKey(it.Item().Key())
		if err != nil {
			return nil, err
		}
		// Reverse entries carry no value; the properties live on the e entry.
		props, _, err := t.getProps(edgeKey(from, etype, to))
		if err != nil {
			return nil, err
		}
		edges = append(edges, &graph.Edge{Type: etype, From: from, To: to, Props: props})
	}
	return edges, nil
}

func (t *tx) Neighbors(ref graph.NodeRef, edgeType string, dir graph.Direction, label string) ([]*graph.Node, error) {
	edges, err := t.Edges(ref, edgeType, dir)
	if err != nil {
		return nil, err
	}
	var nodes []*graph.Node
	for _, e := range edges {
		peer := e.To
		if dir == graph.In {
			peer = e.From
		}
		if label != "" && peer.Label != label {
			continue
		}
		node, ok, err := t.GetNode(peer)
		if err != nil {
			return nil, err
		}
		if ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func (t *tx) Reachable(ref graph.NodeRef, edgeType string, dir graph.Direction) (map[string]bool, error) {
	reached := make(map[string]bool)
	frontier := []graph.NodeRef{ref}
	seen := map[graph.NodeRef]bool{ref: true}
	for len(frontier) > 0 {
		current := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		edges, err := t.Edges(current, edgeType, dir)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			peer := e.To
			if dir == graph.In {
				peer = e.From
			}
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
	key := nodeKey(node.Ref())
	_, err := t.txn.Get(key)
	if err == nil {
		return domain.AlreadyExists(node.Label, node.Key)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	data, err := encodeProps(node.Props)
	if err != nil {
		return err
	}
	return t.txn.Set(key, data)
}

func (t *tx) SetProps(ref graph.NodeRef, props map[string]any) error {
	existing, ok, err := t.getProps(nodeKey(ref))
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFound(ref.Label, ref.Key)
	}
	if existing == nil {
		existing = make(map[string]any)
	}
	for k, v := range props {
		if v == nil {
			delete(existing, k)
			continue
		}
		existing[k] = v
	}
	data, err := encodeProps(existing)
	if err != nil {
		return err
	}
	return t.txn.Set(nodeKey(ref), data)
}

func (t *tx) Increment(ref graph.NodeRef, prop string, delta int64) (int64, error) {
	existing, ok, err := t.getProps(nodeKey(ref))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.NotFound(ref.Label, ref.Key)
	}
	if existing == nil {
		existing = make(map[string]any)
	}
	var current int64
	switch v := existing[prop].(type) {
	case nil:
	case int64:
		current = v
	default:
		return 0, domain.InvalidArgument("property %q of %s %q is not an integer", prop, ref.Label, ref.Key)
	}
	current += delta
	existing[prop] = current
	data, err := encodeProps(existing)
	if err != nil {
		return 0, err
	}
	if err := t.txn.Set(nodeKey(ref), data); err != nil {
		return 0, err
	}
	return current, nil
}

func (t *tx) DeleteNode(ref graph.NodeRef) error {
	if err := t.txn.Delete(nodeKey(ref)); err != nil {
		return err
	}
	// Detach both sides: scan every edge entry keyed by this node and drop
	// the entry together with its mirror.
	for _, dir := range []graph.Direction{graph.Out, graph.In} {
		prefix := edgeScanPrefix(ref, "", dir)
		var keys [][]byte
		it := t.txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			from, etype, to, err := parseEdgeKey(key)
			if err != nil {
				return err
			}
			if err := t.txn.Delete(edgeKey(from, etype, to)); err != nil {
				return err
			}
			if err := t.txn.Delete(reverseKey(from, etype, to)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *tx) CreateEdge(edge *graph.Edge) error {
	for _, end := range []graph.NodeRef{edge.From, edge.To} {
		_, err := t.txn.Get(nodeKey(end))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.NotFound(end.Label, end.Key)
		}
		if err != nil {
			return err
		}
	}
	data, err := encodeProps(edge.Props)
	if err != nil {
		return err
	}
	if err := t.txn.Set(edgeKey(edge.From, edge.Type, edge.To), data); err != nil {
		return err
	}
	return t.txn.Set(reverseKey(edge.From, edge.Type, edge.To), nil)
}

func (t *tx) DeleteEdge(edgeType string, from, to graph.NodeRef) error {
	if err := t.txn.Delete(edgeKey(from, edgeType, to)); err != nil {
		return err
	}
	return t.txn.Delete(reverseKey(from, edgeType, to))
}

func (t *tx) DeleteAll() error {
	for _, prefix := range [][]byte{nodePrefix, edgePrefix, reversePrefix} {
		var keys [][]byte
		it := t.txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range keys {
			if err := t.txn.Delete(key); err != nil {
				return err
			}
		}
	}
	return nil
}
