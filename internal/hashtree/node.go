package hashtree

// nodeID is a handle into Index.nodes.
type nodeID int32

// Nodes with more children than this get a lookup map next to the ordered
// edge list.
const edgeMapThreshold = 8

type edge struct {
	char  rune
	child nodeID
}

// edgeSet is an insertion-ordered mapping from character to node handle.
type edgeSet struct {
	edges  []edge
	lookup map[rune]nodeID
}

func (s *edgeSet) get(c rune) (nodeID, bool) {
	if s.lookup != nil {
		id, ok := s.lookup[c]
		return id, ok
	}
	for _, e := range s.edges {
		if e.char == c {
			return e.child, true
		}
	}
	return 0, false
}

func (s *edgeSet) put(c rune, id nodeID) {
	s.edges = append(s.edges, edge{char: c, child: id})
	if s.lookup != nil {
		s.lookup[c] = id
		return
	}
	if len(s.edges) > edgeMapThreshold {
		s.lookup = make(map[rune]nodeID, len(s.edges)*2)
		for _, e := range s.edges {
			s.lookup[e.char] = e.child
		}
	}
}

func (s *edgeSet) len() int {
	return len(s.edges)
}

type node struct {
	children edgeSet
	terminal bool
	// records holds handles into Index.records, in attach order.
	records []int32
}

// hasKey compares keys exactly: "Cat" and "cat" land on the same node but
// are distinct records.
func (n *node) hasKey(key string, records []Record) bool {
	for _, id := range n.records {
		if records[id].Key == key {
			return true
		}
	}
	return false
}
