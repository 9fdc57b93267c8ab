package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
)

type memOccurrences struct {
	mu   sync.Mutex
	data map[index.DocumentID][]index.Occurrence
}

func (m *memOccurrences) Append(_ context.Context, id index.DocumentID, occs []index.Occurrence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[index.DocumentID][]index.Occurrence)
	}
	m.data[id] = append(m.data[id], occs...)
	return nil
}

func (m *memOccurrences) Load(_ context.Context, id index.DocumentID) ([]index.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]index.Occurrence(nil), m.data[id]...), nil
}

func openTestStore(t *testing.T, dir string) *FileStore {
	t.Helper()
	s, err := Open(Options{Dir: dir, Occurrences: &memOccurrences{}})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())

	doc := index.NewDocument("https://example.com/a?x=1&y=2", "the cat sat")
	doc.Title = "A"
	doc.Language = "en"
	require.NoError(t, s.StoreDocument(ctx, doc))
	assert.Equal(t, index.DocumentID(1), doc.ID)
	assert.Equal(t, 1, s.DocumentCount())

	byID, err := s.LoadDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.URL, byID.URL)
	assert.Equal(t, "the cat sat", byID.Content)
	assert.Equal(t, "A", byID.Title)
	assert.True(t, doc.IndexedAt.Equal(byID.IndexedAt))

	byURL, err := s.LoadDocumentByURL(ctx, doc.URL)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, byURL.ID)

	// loaded documents come back bound to the occurrence store
	require.NoError(t, byURL.AppendOccurrences(ctx, []index.Occurrence{{Text: "cat", WordIndex: 1}}))
	occs, err := byID.Occurrences(ctx)
	require.NoError(t, err)
	assert.Len(t, occs, 1)
}

func TestStoreDocumentKeepsIDPerURL(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())

	first := index.NewDocument("u1", "one")
	require.NoError(t, s.StoreDocument(ctx, first))
	second := index.NewDocument("u2", "two")
	require.NoError(t, s.StoreDocument(ctx, second))
	again := index.NewDocument("u1", "one, revised")
	require.NoError(t, s.StoreDocument(ctx, again))

	assert.Equal(t, index.DocumentID(1), again.ID)
	assert.Equal(t, index.DocumentID(2), second.ID)
	assert.Equal(t, 2, s.DocumentCount())

	mismatched := index.NewDocument("u2", "x")
	mismatched.ID = 7
	err := s.StoreDocument(ctx, mismatched)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestReservedDocumentIsNotIndexedUntilStored(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())

	doc := index.NewDocument("u1", "one")
	created, err := s.ReserveID(doc)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, index.DocumentID(1), doc.ID)
	assert.Equal(t, 1, s.DocumentCount())
	require.NoError(t, doc.AppendOccurrences(ctx, []index.Occurrence{{Text: "one"}}))

	has, err := s.HasDocument("u1")
	require.NoError(t, err)
	assert.False(t, has)
	_, err = s.LoadDocument(ctx, doc.ID)
	require.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	retry := index.NewDocument("u1", "one")
	created, err = s.ReserveID(retry)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, doc.ID, retry.ID)

	require.NoError(t, s.StoreDocument(ctx, retry))
	has, err = s.HasDocument("u1")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 1, s.DocumentCount())

	has, err = s.HasDocument("unknown")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMissingRecordsAreNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())

	_, err := s.LoadDocument(ctx, 99)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	_, err = s.LoadDocumentByURL(ctx, "nowhere")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	_, err = s.LoadTerm(ctx, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrTermNotFound)
}

func TestTermRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())

	term := index.NewTerm("cat")
	term.Add(1, index.Occurrence{Text: "cat", WordIndex: 1, CharStart: 4, CharEnd: 7})
	term.Add(3,
		index.Occurrence{Text: "cat", WordIndex: 9, CharStart: 40, CharEnd: 43},
		index.Occurrence{Text: "cat", WordIndex: 2, CharStart: 8, CharEnd: 11},
	)
	require.NoError(t, s.StoreTerm(ctx, term))

	got, err := s.LoadTerm(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, 2, got.DocumentFrequency())
	assert.Equal(t, []index.DocumentID{1, 3}, got.OccurringDocuments())
	assert.Equal(t, term.OccurrencesIn(3), got.OccurrencesIn(3))
	assert.Equal(t, 2, got.TermFrequency(3))
}

func TestStoreTermWithoutDocumentsRemovesRecord(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())

	term := index.NewTerm("dog")
	term.Add(1, index.Occurrence{Text: "dog", WordIndex: 0, CharEnd: 3})
	require.NoError(t, s.StoreTerm(ctx, term))
	require.NoError(t, s.StoreTerm(ctx, index.NewTerm("dog")))

	_, err := s.LoadTerm(ctx, "dog")
	assert.ErrorIs(t, err, apperrors.ErrTermNotFound)
}

func TestKeysNeedingEscapeAndHashing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())

	for _, text := range []string{"a/b", "..", "naïve", strings.Repeat("x", 400)} {
		term := index.NewTerm(text)
		term.Add(1, index.Occurrence{Text: text})
		require.NoError(t, s.StoreTerm(ctx, term), text)

		got, err := s.LoadTerm(ctx, text)
		require.NoError(t, err, text)
		assert.Equal(t, text, got.Text())
	}
}

func TestCorruptRecordIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())

	term := index.NewTerm("cat")
	term.Add(1, index.Occurrence{Text: "cat"})
	require.NoError(t, s.StoreTerm(ctx, term))

	path := s.termPath("cat")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = s.LoadTerm(ctx, "cat")
	assert.ErrorIs(t, err, apperrors.ErrTermNotFound)
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)
}

func TestCatalogSurvivesReopenAndTornTail(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	for _, u := range []string{"a", "b", "c"} {
		require.NoError(t, s.StoreDocument(ctx, index.NewDocument(u, u)))
	}
	require.NoError(t, s.Close())

	f, err := os.OpenFile(filepath.Join(dir, catalogFile), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{9, 0, 0, 0, 1, 2})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s = openTestStore(t, dir)
	assert.Equal(t, 3, s.DocumentCount())

	d := index.NewDocument("d", "d")
	require.NoError(t, s.StoreDocument(ctx, d))
	assert.Equal(t, index.DocumentID(4), d.ID)
}

func TestReadOnlyStoreRefreshesCatalog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	reader, err := Open(Options{Dir: dir, ReadOnly: true})
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, 0, reader.DocumentCount())

	writer := openTestStore(t, dir)
	require.NoError(t, writer.StoreDocument(ctx, index.NewDocument("a", "alpha")))
	require.NoError(t, writer.StoreDocument(ctx, index.NewDocument("b", "beta")))

	require.NoError(t, reader.Refresh())
	assert.Equal(t, 2, reader.DocumentCount())
	doc, err := reader.LoadDocument(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "beta", doc.Content)

	err = reader.StoreDocument(ctx, index.NewDocument("c", "gamma"))
	assert.ErrorIs(t, err, errReadOnly)
}

func TestOpenRemovesTemporaries(t *testing.T) {
	dir := t.TempDir()
	openTestStore(t, dir).Close()

	stale := filepath.Join(dir, termsDir, ".pending-123.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("junk"), 0o644))

	openTestStore(t, dir)
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}
