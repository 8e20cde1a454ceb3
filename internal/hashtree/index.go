package hashtree

import (
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/tokenizer"
)

// Index is a forest of character tries, one per distinct first character of
// the indexed words. Nodes live in a single arena and refer to their
// children by handle; the forest only grows.
type Index struct {
	roots   edgeSet
	nodes   []node
	records []Record
	words   int
	inserts int
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		nodes:   make([]node, 0, 64),
		records: make([]Record, 0, 16),
	}
}

// Insert indexes r under every whitespace-separated word of its key. A key
// without words is ignored. A word node never holds two records with the
// same key; the first one inserted wins.
func (idx *Index) Insert(r Record) {
	words := tokenizer.Words(r.Key)
	if len(words) == 0 {
		return
	}
	idx.inserts++
	recID := int32(-1)
	for _, word := range words {
		id := idx.path(word) // may grow idx.nodes
		n := &idx.nodes[id]
		if !n.terminal {
			n.terminal = true
			idx.words++
		}
		if n.hasKey(r.Key, idx.records) {
			continue
		}
		if recID < 0 {
			idx.records = append(idx.records, r)
			recID = int32(len(idx.records) - 1)
		}
		n.records = append(n.records, recID)
	}
}

// Query returns the records matching text. Every word of text is looked up
// on its own and the per-word results are concatenated in word order. An
// empty or blank text lists every record in the index.
//
// The result is never nil.
func (idx *Index) Query(text string) []Record {
	return idx.QueryInto(text, make([]Record, 0))
}

// QueryInto behaves like Query but appends to dst.
func (idx *Index) QueryInto(text string, dst []Record) []Record {
	tokens := tokenizer.Words(text)
	if len(tokens) == 0 {
		for _, e := range idx.roots.edges {
			dst = idx.collect(e.child, dst)
		}
		return dst
	}
	for _, token := range tokens {
		id, ok := idx.descend(token)
		if !ok {
			continue
		}
		dst = idx.collect(id, dst)
	}
	return dst
}

// InsertBatch inserts records in order and returns how many had at least
// one word.
func (idx *Index) InsertBatch(records []Record) int {
	before := idx.inserts
	for _, r := range records {
		idx.Insert(r)
	}
	return idx.inserts - before
}

// Len returns the number of distinct records attached to the index.
func (idx *Index) Len() int {
	return len(idx.records)
}

// Stats returns node and record counts.
func (idx *Index) Stats() Stats {
	return Stats{
		Roots:   idx.roots.len(),
		Nodes:   len(idx.nodes),
		Words:   idx.words,
		Records: len(idx.records),
		Inserts: idx.inserts,
	}
}

// path returns the node for word, creating missing nodes on the way.
func (idx *Index) path(word string) nodeID {
	var cur nodeID
	first := true
	for _, c := range word {
		if first {
			first = false
			id, ok := idx.roots.get(c)
			if !ok {
				id = idx.newNode()
				idx.roots.put(c, id)
			}
			cur = id
			continue
		}
		id, ok := idx.nodes[cur].children.get(c)
		if !ok {
			id = idx.newNode()
			idx.nodes[cur].children.put(c, id)
		}
		cur = id
	}
	return cur
}

// descend follows token from its root as far as the forest allows. A
// missing edge ends the walk at the last node reached, so a token that
// overruns the indexed words still matches their shared prefix.
func (idx *Index) descend(token string) (nodeID, bool) {
	var cur nodeID
	first := true
	for _, c := range token {
		if first {
			first = false
			id, ok := idx.roots.get(c)
			if !ok {
				return 0, false
			}
			cur = id
			continue
		}
		id, ok := idx.nodes[cur].children.get(c)
		if !ok {
			break
		}
		cur = id
	}
	return cur, !first
}

// collect appends the records of start and its subtree in preorder:
// a node's own records first, then each child in insertion order.
func (idx *Index) collect(start nodeID, dst []Record) []Record {
	stack := make([]nodeID, 1, 16)
	stack[0] = start
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &idx.nodes[id]
		if n.terminal {
			for _, rid := range n.records {
				dst = append(dst, idx.records[rid])
			}
		}
		edges := n.children.edges
		for i := len(edges) - 1; i >= 0; i-- {
			stack = append(stack, edges[i].child)
		}
	}
	return dst
}

func (idx *Index) newNode() nodeID {
	idx.nodes = append(idx.nodes, node{})
	return nodeID(len(idx.nodes) - 1)
}
