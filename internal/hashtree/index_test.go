package hashtree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key
	}
	return out
}

func TestIndex_SingleWordKey(t *testing.T) {
	idx := New()
	r := Record{Key: "banana", Value: "fruit"}
	idx.Insert(r)

	assert.Contains(t, idx.Query("banana"), r)
}

func TestIndex_MultiWordKeyReachableByEveryWord(t *testing.T) {
	idx := New()
	r := Record{Key: "the quick brown fox", Value: "phrase"}
	idx.Insert(r)

	for _, w := range []string{"the", "quick", "brown", "fox"} {
		assert.Contains(t, idx.Query(w), r, "word %q", w)
	}
}

func TestIndex_PrefixExpansion(t *testing.T) {
	// insert apple then app; "ap" reaches app before the deeper apple.
	idx := New()
	apple := Record{Key: "apple", Value: "fruit"}
	app := Record{Key: "app", Value: "abbr"}
	idx.Insert(apple)
	idx.Insert(app)

	assert.Equal(t, []Record{app, apple}, idx.Query("ap"))
	assert.Equal(t, []Record{apple}, idx.Query("apple"))
	assert.Equal(t, []Record{app, apple}, idx.Query("app"))
}

func TestIndex_MultiWordQueryConcatenates(t *testing.T) {
	idx := New()
	ny := Record{Key: "New York", Value: "city"}
	idx.Insert(ny)

	assert.Equal(t, []Record{ny}, idx.Query("new"))
	assert.Equal(t, []Record{ny}, idx.Query("york"))
	assert.Equal(t, []Record{ny, ny}, idx.Query("new york"))
}

func TestIndex_EmptyIndex(t *testing.T) {
	idx := New()

	got := idx.Query("x")
	require.NotNil(t, got)
	assert.Empty(t, got)

	got = idx.Query("")
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestIndex_DuplicateKeySuppressed(t *testing.T) {
	idx := New()
	cat := Record{Key: "cat", Value: "animal"}
	idx.Insert(cat)
	idx.Insert(cat)

	assert.Equal(t, []Record{cat}, idx.Query("cat"))
	st := idx.Stats()
	assert.Equal(t, 1, st.Records)
	assert.Equal(t, 2, st.Inserts)
}

func TestIndex_DuplicateKeyKeepsFirstValue(t *testing.T) {
	idx := New()
	idx.Insert(Record{Key: "cat", Value: "animal"})
	idx.Insert(Record{Key: "cat", Value: "tool"})

	assert.Equal(t, []Record{{Key: "cat", Value: "animal"}}, idx.Query("cat"))
}

func TestIndex_NoRootForToken(t *testing.T) {
	idx := New()
	apple := Record{Key: "apple", Value: "fruit"}
	idx.Insert(apple)

	assert.Empty(t, idx.Query("zebra"))
	// Tokens without a root contribute nothing; the others still match.
	assert.Equal(t, []Record{apple}, idx.Query("zebra apple"))
}

func TestIndex_OverrunningTokenCollectsLastReachedNode(t *testing.T) {
	idx := New()
	apple := Record{Key: "apple", Value: "fruit"}
	apply := Record{Key: "apply", Value: "verb"}
	idx.Insert(apple)
	idx.Insert(apply)

	// "applz" stops at "appl" and expands from there.
	assert.Equal(t, []Record{apple, apply}, idx.Query("applz"))
	// "applesauce" stops at the terminal "apple" node.
	assert.Equal(t, []Record{apple}, idx.Query("applesauce"))
}

func TestIndex_CaseInsensitive(t *testing.T) {
	idx := New()
	r := Record{Key: "Apple Pie", Value: "dessert"}
	idx.Insert(r)

	assert.Equal(t, []Record{r}, idx.Query("APP"))
	assert.Equal(t, []Record{r}, idx.Query("pIe"))
}

func TestIndex_BlankKeyIsNoop(t *testing.T) {
	idx := New()
	idx.Insert(Record{Key: "", Value: "x"})
	idx.Insert(Record{Key: "   \t", Value: "y"})

	assert.Equal(t, Stats{}, idx.Stats())
	assert.Empty(t, idx.Query(""))
}

func TestIndex_SingleCharacterKey(t *testing.T) {
	idx := New()
	r := Record{Key: "x", Value: "letter"}
	idx.Insert(r)

	st := idx.Stats()
	assert.Equal(t, 1, st.Roots)
	assert.Equal(t, 1, st.Nodes)
	assert.Equal(t, 1, st.Words)
	assert.Equal(t, []Record{r}, idx.Query("x"))
	assert.Equal(t, []Record{r}, idx.Query("xyz"))
}

func TestIndex_FullListing(t *testing.T) {
	idx := New()
	records := []Record{
		{Key: "banana", Value: "fruit"},
		{Key: "apple", Value: "fruit"},
		{Key: "New York", Value: "city"},
		{Key: "app", Value: "abbr"},
	}
	for _, r := range records {
		idx.Insert(r)
	}

	got := idx.Query("")
	// roots in first-seen order: b, a, n, y
	assert.Equal(t, []string{"banana", "app", "apple", "New York", "New York"}, keys(got))
	for _, r := range records {
		assert.Contains(t, got, r)
	}
	assert.Equal(t, got, idx.Query("  \t "))
	assert.Equal(t, got, idx.Query(""), "listing must be stable across calls")
}

func TestIndex_SharedWordAcrossRecords(t *testing.T) {
	idx := New()
	a := Record{Key: "red apple", Value: "1"}
	b := Record{Key: "green apple", Value: "2"}
	idx.Insert(a)
	idx.Insert(b)

	assert.Equal(t, []Record{a, b}, idx.Query("apple"))
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_RepeatedWordInKey(t *testing.T) {
	idx := New()
	r := Record{Key: "bye bye", Value: "song"}
	idx.Insert(r)

	assert.Equal(t, []Record{r}, idx.Query("bye"))
}

func TestIndex_WideNodeKeepsInsertionOrder(t *testing.T) {
	idx := New()
	var want []string
	for c := 'z'; c >= 'f'; c-- {
		k := "a" + string(c)
		idx.Insert(Record{Key: k, Value: k})
		want = append(want, k)
	}
	assert.Equal(t, want, keys(idx.Query("a")))
	assert.Equal(t, []string{"am"}, keys(idx.Query("am")))
}

func TestIndex_MultiByteCharacters(t *testing.T) {
	idx := New()
	r := Record{Key: "Éclair", Value: "pastry"}
	idx.Insert(r)

	assert.Equal(t, []Record{r}, idx.Query("éc"))
	assert.Equal(t, []Record{r}, idx.Query("ÉCLAIR"))
	assert.Empty(t, idx.Query("ec"))
}

func TestIndex_QueryIntoAppends(t *testing.T) {
	idx := New()
	r := Record{Key: "cat", Value: "animal"}
	idx.Insert(r)

	dst := []Record{{Key: "seed"}}
	dst = idx.QueryInto("c", dst)
	assert.Equal(t, []string{"seed", "cat"}, keys(dst))
}

func TestIndex_DeepKeyDoesNotRecurse(t *testing.T) {
	idx := New()
	long := make([]byte, 100000)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}
	r := Record{Key: string(long), Value: "deep"}
	idx.Insert(r)

	assert.Equal(t, []Record{r}, idx.Query("a"))
	assert.Equal(t, 100000, idx.Stats().Nodes)
}

func TestIndex_Stats(t *testing.T) {
	idx := New()
	idx.Insert(Record{Key: "ab", Value: "1"})
	idx.Insert(Record{Key: "ac", Value: "2"})
	idx.Insert(Record{Key: "b", Value: "3"})

	assert.Equal(t, Stats{Roots: 2, Nodes: 4, Words: 3, Records: 3, Inserts: 3}, idx.Stats())
}

func TestIndex_InsertBatchCountsIndexable(t *testing.T) {
	idx := New()
	n := idx.InsertBatch([]Record{
		{Key: "cat", Value: "animal"},
		{Key: "   ", Value: "blank"},
		{Key: "dog house", Value: "place"},
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_KeysDifferingOnlyInCaseAreDistinct(t *testing.T) {
	idx := New()
	upper := Record{Key: "Cat", Value: "proper"}
	lower := Record{Key: "cat", Value: "common"}
	idx.Insert(upper)
	idx.Insert(lower)
	idx.Insert(Record{Key: "cat", Value: "ignored"})

	assert.Equal(t, []Record{upper, lower}, idx.Query("CAT"))
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_NodeGrowthDuringInsertMarksTerminal(t *testing.T) {
	idx := New()
	idx.Insert(Record{Key: "a", Value: "seed"})
	long := strings.Repeat("b", 500)
	r := Record{Key: "x " + long, Value: "grown"}
	idx.Insert(r)

	assert.Equal(t, []Record{r}, idx.Query(long))
	assert.Equal(t, []Record{r}, idx.Query("x"))
	assert.Equal(t, 3, idx.Stats().Words)
}
