package badger

import (
	"bytes"
	"fmt"

	"github.com/castellan-io/castellan/pkg/graph"
)

// Key schema.
//
// The graph is laid out as three namespaces, separated so each access
// pattern is a single point lookup or prefix scan:
//
//	n\x00<label>\x00<key>                                          -> node props
//	e\x00<fromLabel>\x00<fromKey>\x00<type>\x00<toLabel>\x00<toKey> -> edge props
//	r\x00<toLabel>\x00<toKey>\x00<type>\x00<fromLabel>\x00<fromKey> -> (empty)
//
// Every edge is written twice: the e entry carries the properties and serves
// outgoing scans, the r entry is a reverse index serving incoming scans.
// Prefix scans give:
//
//	n\x00<label>\x00                       all nodes with a label (FindNodes)
//	e\x00<from...>\x00<type>\x00           outgoing edges of one type (Edges, Neighbors)
//	r\x00<to...>\x00<type>\x00             incoming edges of one type
//	e\x00<from...>\x00 / r\x00<to...>\x00  everything touching a node (DeleteNode)
//
// NUL is the component separator, so labels and keys must not contain NUL
// bytes. Caller keys are validated at the API boundary.

const keySep = "\x00"

var (
	nodePrefix    = []byte("n" + keySep)
	edgePrefix    = []byte("e" + keySep)
	reversePrefix = []byte("r" + keySep)
)

func nodeKey(ref graph.NodeRef) []byte {
	return []byte("n" + keySep + ref.Label + keySep + ref.Key)
}

func nodeLabelPrefix(label string) []byte {
	return []byte("n" + keySep + label + keySep)
}

func edgeKey(from graph.NodeRef, edgeType string, to graph.NodeRef) []byte {
	return []byte("e" + keySep + from.Label + keySep + from.Key + keySep + edgeType + keySep + to.Label + keySep + to.Key)
}

func reverseKey(from graph.NodeRef, edgeType string, to graph.NodeRef) []byte {
	return []byte("r" + keySep + to.Label + keySep + to.Key + keySep + edgeType + keySep + from.Label + keySep + from.Key)
}

// edgeScanPrefix returns the prefix for scanning edges of one type touching
// ref on the side selected by dir. An empty edgeType scans every type.
func edgeScanPrefix(ref graph.NodeRef, edgeType string, dir graph.Direction) []byte {
	ns := "e"
	if dir == graph.In {
		ns = "r"
	}
	p := ns + keySep + ref.Label + keySep + ref.Key + keySep
	if edgeType != "" {
		p += edgeType + keySep
	}
	return []byte(p)
}

// parseEdgeKey decodes an e or r entry back into its edge endpoints.
func parseEdgeKey(key []byte) (from graph.NodeRef, edgeType string, to graph.NodeRef, err error) {
	parts := bytes.Split(key, []byte(keySep))
	if len(parts) != 6 {
		return from, "", to, fmt.Errorf("malformed edge key %q", key)
	}
	a := graph.NodeRef{Label: string(parts[1]), Key: string(parts[2])}
	edgeType = string(parts[3])
	b := graph.NodeRef{Label: string(parts[4]), Key: string(parts[5])}
	if parts[0][0] == 'r' {
		// Reverse entries are keyed by the To side.
		return b, edgeType, a, nil
	}
	return a, edgeType, b, nil
}

func parseNodeKey(key []byte) (graph.NodeRef, error) {
	parts := bytes.Split(key, []byte(keySep))
	if len(parts) != 3 {
		return graph.NodeRef{}, fmt.Errorf("malformed node key %q", key)
	}
	return graph.NodeRef{Label: string(parts[1]), Key: string(parts[2])}, nil
}
