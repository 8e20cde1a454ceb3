package hashtree

import (
	"sync"
)

// Store guards an Index with a readers-writer lock. Inserts are serialized
// and queries run concurrently with each other but never with an insert.
type Store struct {
	mu  sync.RWMutex
	idx *Index
}

// NewStore returns a Store over an empty Index.
func NewStore() *Store {
	return &Store{idx: New()}
}

// Insert adds r to the index.
func (s *Store) Insert(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx.Insert(r)
}

// InsertBatch adds records in order under a single write lock and returns
// the number of records whose key contained at least one word.
func (s *Store) InsertBatch(records []Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.InsertBatch(records)
}

// Query returns the records matching text. See Index.Query.
func (s *Store) Query(text string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Query(text)
}

// QueryInto appends the records matching text to dst.
func (s *Store) QueryInto(text string, dst []Record) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.QueryInto(text, dst)
}

// Len returns the number of distinct records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Len()
}

// Stats returns the current index stats.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Stats()
}

// Replace swaps in idx, dropping the previous index. It is used to publish
// a freshly loaded index in one step.
func (s *Store) Replace(idx *Index) {
	if idx == nil {
		idx = New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx = idx
}
