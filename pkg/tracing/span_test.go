package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
)

func TestStart_RootUsesRequestID(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-42")
	ctx, root := Start(ctx, "http")

	assert.Equal(t, "req-42", root.TraceID)
	assert.Same(t, root, FromContext(ctx))
}

func TestStart_RootWithoutRequestID(t *testing.T) {
	_, root := Start(context.Background(), "http")
	assert.NotEmpty(t, root.TraceID)
}

func TestStart_ChildInheritsTrace(t *testing.T) {
	ctx, root := Start(context.Background(), "http")
	_, child := Start(ctx, "search")
	child.End()

	assert.Equal(t, root.TraceID, child.TraceID)
	require.Len(t, root.Children(), 1)
	assert.Same(t, child, root.Children()[0])
	assert.Nil(t, FromContext(context.Background()))
}

func TestChild_WithoutParent(t *testing.T) {
	ctx := context.Background()
	got, span := Child(ctx, "search")
	assert.Nil(t, span)
	assert.Equal(t, ctx, got)

	ctx, root := Start(ctx, "http")
	_, span = Child(ctx, "search")
	require.NotNil(t, span)
	assert.Len(t, root.Children(), 1)
}

func TestNilSpanIsSafe(t *testing.T) {
	var s *Span
	s.SetAttr("k", "v")
	s.End()
}

func TestLog_Preorder(t *testing.T) {
	ctx, root := Start(context.Background(), "http")
	root.SetAttr("path", "/api/v1/search")
	cctx, search := Start(ctx, "search")
	_, q := Start(cctx, "query")
	q.SetAttr("returned", 3)
	q.End()
	search.End()
	_, enc := Start(ctx, "encode")
	enc.End()

	var buf bytes.Buffer
	root.Log(logger.New(&buf, "debug", "json"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	var names []string
	var depths []float64
	for _, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		names = append(names, rec["span"].(string))
		depths = append(depths, rec["depth"].(float64))
	}
	assert.Equal(t, []string{"http", "search", "query", "encode"}, names)
	assert.Equal(t, []float64{0, 1, 2, 1}, depths)
	assert.Contains(t, lines[0], `"path":"/api/v1/search"`)
	assert.Contains(t, lines[2], `"returned":3`)
}

func TestLog_SkippedAboveDebug(t *testing.T) {
	_, root := Start(context.Background(), "http")
	root.End()

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	assert.Empty(t, buf.String())
}
