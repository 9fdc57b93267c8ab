package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansAttachToParent(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "trace-1")
	_, child := StartChildSpan(ctx, "resolve_terms")
	child.SetAttr("terms", 3)
	child.End()
	root.End()

	children := root.Children()
	require.Len(t, children, 1)
	assert.Equal(t, "trace-1", children[0].TraceID)

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Contains(t, buf.String(), "span=resolve_terms")
	assert.Contains(t, buf.String(), "terms=3")
}

func TestChildWithoutParentIsNil(t *testing.T) {
	ctx := context.Background()
	got, span := StartChildSpan(ctx, "orphan")
	assert.Nil(t, span)
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() {
		span.SetAttr("k", "v")
		span.End()
	})
}
