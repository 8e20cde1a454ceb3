package hashtree

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/tokenizer"
)

func benchIndex(n int) *Index {
	idx := New()
	for i := 0; i < n; i++ {
		idx.Insert(Record{Key: fmt.Sprintf("word%d other%d", i, i%100), Value: "v"})
	}
	return idx
}

// BenchmarkIndexInsert measures per-record insert throughput for multi-word
// keys.
func BenchmarkIndexInsert(b *testing.B) {
	idx := New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Insert(Record{Key: fmt.Sprintf("record %d benchmark key", i), Value: "v"})
	}
}

// BenchmarkIndexQueryPrefix measures prefix lookups against indexes of
// increasing size.
func BenchmarkIndexQueryPrefix(b *testing.B) {
	for _, n := range []int{1000, 10000, 100000} {
		b.Run(fmt.Sprintf("records_%d", n), func(b *testing.B) {
			idx := benchIndex(n)
			dst := make([]Record, 0, 1024)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				dst = idx.QueryInto("word99", dst[:0])
			}
		})
	}
}

// BenchmarkIndexQueryMultiToken measures lookups whose results are
// concatenated across several tokens.
func BenchmarkIndexQueryMultiToken(b *testing.B) {
	idx := benchIndex(10000)
	queries := []string{"word1", "word1 other1", "word1 other1 word2 other2"}
	for _, q := range queries {
		b.Run(fmt.Sprintf("tokens_%d", len(tokenizer.Words(q))), func(b *testing.B) {
			dst := make([]Record, 0, 4096)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				dst = idx.QueryInto(q, dst[:0])
			}
		})
	}
}

// BenchmarkIndexFullListing measures the blank-query walk over every root.
func BenchmarkIndexFullListing(b *testing.B) {
	idx := New()
	for i := 0; i < 5000; i++ {
		idx.Insert(Record{Key: fmt.Sprintf("listing %d", i), Value: "v"})
	}
	dst := make([]Record, 0, 16384)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst = idx.QueryInto("", dst[:0])
	}
}

// BenchmarkStoreQueryParallel measures concurrent read throughput through
// the locked store.
func BenchmarkStoreQueryParallel(b *testing.B) {
	s := NewStore()
	for i := 0; i < 10000; i++ {
		s.Insert(Record{Key: fmt.Sprintf("word%d other%d", i, i%100), Value: "v"})
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		dst := make([]Record, 0, 1024)
		for pb.Next() {
			dst = s.QueryInto("other42", dst[:0])
		}
	})
}
