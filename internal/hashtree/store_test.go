package hashtree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_InsertBatch(t *testing.T) {
	s := NewStore()
	n := s.InsertBatch([]Record{
		{Key: "apple", Value: "fruit"},
		{Key: "  ", Value: "blank"},
		{Key: "banana", Value: "fruit"},
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"apple", "banana"}, keys(s.Query("")))
}

func TestStore_Replace(t *testing.T) {
	s := NewStore()
	s.Insert(Record{Key: "old", Value: "1"})

	fresh := New()
	fresh.Insert(Record{Key: "new", Value: "2"})
	s.Replace(fresh)

	assert.Empty(t, s.Query("old"))
	assert.Equal(t, []string{"new"}, keys(s.Query("n")))

	s.Replace(nil)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ConcurrentReadersAndWriter(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Insert(Record{Key: fmt.Sprintf("key%d", i), Value: "v"})
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = s.Query("key")
				_ = s.Stats()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, s.Len())
	assert.Len(t, s.Query("key"), 500)
}
