package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfquiz/internal/model"
	"pdfquiz/internal/vectorstore"
)

func TestParsePageReference(t *testing.T) {
	tests := []struct {
		query string
		page  int
		ok    bool
	}{
		{"page 5", 5, true},
		{"What is on page 3?", 3, true},
		{"summarize pg. 7 please", 7, true},
		{"explain p. 2", 2, true},
		{"Page number 12", 12, true},
		{"see page #4", 4, true},
		{"PAGE 9", 9, true},
		{"what's on page 10", 10, true},
		{"homepage 4", 0, false},
		{"page 0", 0, false},
		{"how many pages are there", 0, false},
		{"explain photosynthesis", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			page, ok := ParsePageReference(tt.query)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.page, page)
		})
	}
}

func seed(t *testing.T, store vectorstore.Store, namespace string, chunks []model.Chunk) {
	t.Helper()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := (&hashEmbedder{}).Embed(context.Background(), texts)
	require.NoError(t, err)
	ix := NewIndexer(store, 0, 1, nil)
	_, err = ix.IndexChunks(context.Background(), namespace, chunks, vectors, IndexTags{DocumentID: "doc-1"})
	require.NoError(t, err)
}

func TestRetrievePageConcatenatesChunks(t *testing.T) {
	store := vectorstore.NewChromemStore(nil)
	seed(t, store, "ns", []model.Chunk{
		{Text: "first part of page two", PageNumber: 2, Index: 1},
		{Text: "opening of page one", PageNumber: 1, Index: 0},
		{Text: "second part of page two", PageNumber: 2, Index: 2},
		{Text: "third part of page two", PageNumber: 2, Index: 3},
	})
	r := NewRetriever(&hashEmbedder{}, store, RetrieverConfig{}, nil)

	results, err := r.Retrieve(context.Background(), "tell me about page 2", "ns", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "first part of page two second part of page two third part of page two", results[0].Text)
	assert.Equal(t, 2, results[0].PageNumber)

	_, err = r.Retrieve(context.Background(), "tell me about page 3", "ns", 1)
	var pageErr *PageNotAvailableError
	require.True(t, errors.As(err, &pageErr))
	assert.Equal(t, 3, pageErr.Page)
}

func TestRetrieveSemanticOrdering(t *testing.T) {
	store := vectorstore.NewChromemStore(nil)
	seed(t, store, "ns", []model.Chunk{
		{Text: "cells divide by mitosis", PageNumber: 3, Index: 0},
		{Text: "the french revolution began in 1789", PageNumber: 1, Index: 1},
		{Text: "mitosis produces two identical cells", PageNumber: 2, Index: 2},
	})
	r := NewRetriever(&hashEmbedder{}, store, RetrieverConfig{}, nil)

	results, err := r.Retrieve(context.Background(), "how do cells divide by mitosis", "ns", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "cells divide by mitosis", results[0].Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestRetrieveRetriesEmptyResultOnce(t *testing.T) {
	inner := vectorstore.NewChromemStore(nil)
	seed(t, inner, "ns", []model.Chunk{{Text: "krebs cycle in the matrix", PageNumber: 1}})
	store := &laggingStore{Store: inner, hidden: 1}
	r := NewRetriever(&hashEmbedder{}, store, RetrieverConfig{}, nil)

	results, err := r.Retrieve(context.Background(), "krebs cycle", "ns", 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, store.queryCount())
}

func TestRetrieveBroadensAnalysisQueries(t *testing.T) {
	inner := vectorstore.NewChromemStore(nil)
	seed(t, inner, "ns", []model.Chunk{{Text: "document content summary of the lecture", PageNumber: 4}})

	t.Run("analysis query", func(t *testing.T) {
		store := &laggingStore{Store: inner, hidden: 2}
		embedder := &hashEmbedder{}
		r := NewRetriever(embedder, store, RetrieverConfig{}, nil)

		results, err := r.Retrieve(context.Background(), "Please summarize this", "ns", 3)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 4, results[0].PageNumber)
		assert.EqualValues(t, 2, embedder.calls.Load())
		assert.Equal(t, 3, store.queryCount())
	})

	t.Run("specific query", func(t *testing.T) {
		store := &laggingStore{Store: inner, hidden: 2}
		embedder := &hashEmbedder{}
		r := NewRetriever(embedder, store, RetrieverConfig{}, nil)

		results, err := r.Retrieve(context.Background(), "what is the lecture about", "ns", 3)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.EqualValues(t, 1, embedder.calls.Load())
	})
}

func TestRetrieveEdgeCases(t *testing.T) {
	r := NewRetriever(&hashEmbedder{}, vectorstore.NewChromemStore(nil), RetrieverConfig{}, nil)

	results, err := r.Retrieve(context.Background(), "   ", "ns", 3)
	require.NoError(t, err)
	assert.Nil(t, results)

	results, err = r.Retrieve(context.Background(), "anything", "ns", 0)
	require.NoError(t, err)
	assert.Nil(t, results)

	results, err = r.Retrieve(context.Background(), "anything", "empty-namespace", 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	failing := NewRetriever(&hashEmbedder{err: errors.New("boom")}, vectorstore.NewChromemStore(nil), RetrieverConfig{}, nil)
	_, err = failing.Retrieve(context.Background(), "anything", "ns", 3)
	assert.Error(t, err)
}
