package occurrence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/resilience"
)

func TestMemoryAppendsInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Append(ctx, 1, []index.Occurrence{{Text: "cat", WordIndex: 0}}))
	require.NoError(t, m.Append(ctx, 1, []index.Occurrence{{Text: "sat", WordIndex: 1}}))
	require.NoError(t, m.Append(ctx, 2, []index.Occurrence{{Text: "dog", WordIndex: 0}}))

	got, err := m.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "sat"}, texts(got))

	got[0].Text = "mutated"
	again, _ := m.Load(ctx, 1)
	assert.Equal(t, "cat", again[0].Text)

	none, err := m.Load(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryBacksDocument(t *testing.T) {
	ctx := context.Background()
	doc := index.NewDocument("https://example.com/a", "the cat")
	doc.ID = 3
	doc.Bind(NewMemory())

	require.NoError(t, doc.AppendOccurrences(ctx, []index.Occurrence{{Text: "cat", WordIndex: 1, CharStart: 4, CharEnd: 7}}))
	occs, err := doc.Occurrences(ctx)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, 4, occs[0].CharStart)
}

type flaky struct {
	*Memory
	failures atomic.Int32
	err      error
}

func (f *flaky) Load(ctx context.Context, id index.DocumentID) ([]index.Occurrence, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, f.err
	}
	return f.Memory.Load(ctx, id)
}

func TestGuardRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	b := &flaky{Memory: NewMemory(), err: errors.New("connection reset")}
	b.failures.Store(2)
	require.NoError(t, b.Append(ctx, 1, []index.Occurrence{{Text: "cat"}}))

	g := Guard("test", b, nil)
	occs, err := g.Load(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, occs, 1)
	assert.Equal(t, resilience.StateClosed, g.State())
}

func TestGuardDoesNotRetryMalformed(t *testing.T) {
	b := &flaky{Memory: NewMemory(), err: apperrors.ErrMalformedRecord}
	b.failures.Store(2)

	_, err := Guard("test", b, nil).Load(context.Background(), 1)
	require.ErrorIs(t, err, apperrors.ErrMalformedRecord)
	assert.Equal(t, int32(1), b.failures.Load())
}

func TestGuardOpensCircuit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b := &flaky{Memory: NewMemory(), err: errors.New("down")}
	b.failures.Store(1 << 20)
	g := Guard("occ", b, m)

	ctx := context.Background()
	for range 5 {
		_, err := g.Load(ctx, 1)
		require.Error(t, err)
	}
	_, err := g.Load(ctx, 1)
	require.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, resilience.StateOpen, g.State())
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("occ")))
}

func TestOpenMemoryBackend(t *testing.T) {
	cfg := config.Default()
	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	_, ok := b.(*Memory)
	assert.True(t, ok)
	require.NoError(t, b.Ping(context.Background()))
	require.NoError(t, b.Close())
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Index.OccurrenceBackend = "cassandra"
	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
}

func texts(occs []index.Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.Text
	}
	return out
}
