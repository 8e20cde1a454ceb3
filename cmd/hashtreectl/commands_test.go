package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
)

const recordsJSON = `[
	{"key": "apple", "value": "fruit"},
	{"key": "app", "value": "software"},
	{"key": "New York", "value": "city"}
]`

func writeRecords(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(recordsJSON), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuery_FromFile(t *testing.T) {
	path := writeRecords(t)

	out, err := execute(t, "query", "--file", path, "ap")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.ElementsMatch(t, []string{"apple: fruit", "app: software"}, lines)
}

func TestQuery_MultipleArgsAreTokens(t *testing.T) {
	path := writeRecords(t)

	out, err := execute(t, "query", "--file", path, "--json", "YORK", "app")
	require.NoError(t, err)
	var records []hashtree.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 3)
	assert.Equal(t, hashtree.Record{Key: "New York", Value: "city"}, records[0])
}

func TestQuery_NoTermListsEverything(t *testing.T) {
	path := writeRecords(t)

	out, err := execute(t, "query", "--file", path, "--json")
	require.NoError(t, err)
	var records []hashtree.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 4)
}

func TestQuery_NoMatches(t *testing.T) {
	path := writeRecords(t)

	out, err := execute(t, "query", "--file", path, "zebra")
	require.NoError(t, err)
	assert.Equal(t, "No matches found.\n", out)

	out, err = execute(t, "query", "--file", path, "--json", "zebra")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestQuery_Limit(t *testing.T) {
	path := writeRecords(t)
	out, err := execute(t, "query", "--file", path, "--limit", "1", "ap")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
}

func TestQuery_FallbackWhenSourceFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	out, err := execute(t, "query", "--url", srv.URL, "--retries", "1", "a")
	require.NoError(t, err)
	assert.Equal(t, "apple: fruit\n", out)
}

func TestQuery_NoFallbackFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := execute(t, "query", "--url", srv.URL, "--fallback=false", "a")
	assert.Error(t, err)
}

func TestQuery_Remote(t *testing.T) {
	var gotQuery, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"new york","results":[{"key":"New York","value":"city"}]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "query", "--remote", srv.URL+"/", "--limit", "5", "new", "york")
	require.NoError(t, err)
	assert.Equal(t, "new york", gotQuery)
	assert.Equal(t, "5", gotLimit)
	assert.Equal(t, "New York: city\n", out)
}

func TestQuery_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"limit must be a non-negative integer"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := execute(t, "query", "--remote", srv.URL, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestStats(t *testing.T) {
	path := writeRecords(t)

	out, err := execute(t, "stats", "--file", path)
	require.NoError(t, err)
	var got struct {
		Load struct {
			Indexed  int  `json:"indexed"`
			Fallback bool `json:"fallback"`
		} `json:"load"`
		Index hashtree.Stats `json:"index"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.Load.Indexed)
	assert.False(t, got.Load.Fallback)
	assert.Equal(t, 3, got.Index.Records)
	assert.Equal(t, 4, got.Index.Words)
}
