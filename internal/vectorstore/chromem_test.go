package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, vec []float32, page, chunk int, doc string) Entry {
	return Entry{
		ID:     id,
		Vector: vec,
		Metadata: Metadata{
			Text:       "text of " + id,
			PageNumber: page,
			ChunkIndex: chunk,
			ChatID:     "42",
			FileName:   "biology.pdf",
			DocumentID: doc,
			Tags:       map[string]string{"course": "bio101"},
		},
	}
}

func TestChromemUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewChromemStore(nil)

	err := store.Upsert(ctx, "chat-42", []Entry{
		entry("a", []float32{1, 0, 0}, 1, 0, "doc-1"),
		entry("b", []float32{0.9, 0.1, 0}, 2, 0, "doc-1"),
		entry("c", []float32{0, 1, 0}, 2, 1, "doc-2"),
	})
	require.NoError(t, err)

	matches, err := store.Query(ctx, "chat-42", Query{Vector: []float32{1, 0, 0}, TopK: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)

	got := matches[0].Metadata
	assert.Equal(t, "text of a", got.Text)
	assert.Equal(t, 1, got.PageNumber)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "biology.pdf", got.FileName)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, map[string]string{"course": "bio101"}, got.Tags)
}

func TestChromemQueryFilters(t *testing.T) {
	ctx := context.Background()
	store := NewChromemStore(nil)
	require.NoError(t, store.Upsert(ctx, "chat-42", []Entry{
		entry("a", []float32{1, 0, 0}, 1, 0, "doc-1"),
		entry("b", []float32{0, 1, 0}, 2, 0, "doc-1"),
		entry("c", []float32{0, 0, 1}, 2, 1, "doc-2"),
	}))

	matches, err := store.Query(ctx, "chat-42", Query{Vector: []float32{1, 0, 0}, TopK: 10, PageNumber: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, 2, m.Metadata.PageNumber)
	}

	matches, err = store.Query(ctx, "chat-42", Query{Vector: []float32{1, 0, 0}, TopK: 10, DocumentID: "doc-2"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c", matches[0].ID)
}

func TestChromemNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewChromemStore(nil)
	require.NoError(t, store.Upsert(ctx, "chat-1", []Entry{entry("a", []float32{1, 0}, 1, 0, "d")}))

	matches, err := store.Query(ctx, "chat-2", Query{Vector: []float32{1, 0}, TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = store.Query(ctx, "chat-1", Query{Vector: []float32{1, 0}, TopK: 5})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestChromemValidation(t *testing.T) {
	store := NewChromemStore(nil)
	assert.ErrorIs(t, store.Upsert(context.Background(), "", nil), ErrInvalidNamespace)
	assert.ErrorIs(t, store.Upsert(context.Background(), "ns", []Entry{{ID: "x"}}), ErrInvalidEntry)
	_, err := store.Query(context.Background(), "", Query{})
	assert.ErrorIs(t, err, ErrInvalidNamespace)
}

func TestPersistentChromemStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPersistentChromemStore(dir, false)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), "shared", []Entry{entry("a", []float32{1, 0}, 3, 0, "d")}))

	reopened, err := NewPersistentChromemStore(dir, false)
	require.NoError(t, err)
	matches, err := reopened.Query(context.Background(), "shared", Query{Vector: []float32{1, 0}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 3, matches[0].Metadata.PageNumber)
}
