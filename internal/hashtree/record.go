// Package hashtree implements the in-memory prefix index ("hash tree") used
// to answer word-prefix lookups over key/value records.
//
// The index is a forest of tries keyed by the first character of every
// indexed word. Each record key is lower-cased and split into words; every
// word gets its own path from a root, and the record is attached to the node
// where the word ends. Queries walk the same paths and collect every record
// found at or below the node reached.
//
// Index is not safe for concurrent use. Store wraps an Index with a
// readers-writer lock for callers that share it across goroutines.
package hashtree

// Record is a key/value pair held by the index. Keys match case-insensitively.
type Record struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Stats describes the shape of an Index.
type Stats struct {
	Roots   int `json:"roots"`
	Nodes   int `json:"nodes"`
	Words   int `json:"words"`
	Records int `json:"records"`
	Inserts int `json:"inserts"`
}
