package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdfquiz/internal/logging"
	"pdfquiz/internal/model"
	"pdfquiz/internal/pkg/retry"
	"pdfquiz/internal/vectorstore"
)

// EmbeddedChunk pairs a chunk with its vector.
type EmbeddedChunk struct {
	Chunk  model.Chunk
	Vector []float32
}

// Zip pairs chunks and vectors by position.
func Zip(chunks []model.Chunk, vectors [][]float32) ([]EmbeddedChunk, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrChunkVectorMismatch, len(chunks), len(vectors))
	}
	out := make([]EmbeddedChunk, len(chunks))
	for i := range chunks {
		out[i] = EmbeddedChunk{Chunk: chunks[i], Vector: vectors[i]}
	}
	return out, nil
}

// IndexTags are stored on every entry of one document.
type IndexTags struct {
	ChatID     string
	FileName   string
	DocumentID string
	Extra      map[string]string
}

type IndexReceipt struct {
	Namespace  string
	DocumentID string
	EntryIDs   []string
	// Visible is false when the probe never saw the write.
	Visible       bool
	ProbeAttempts int
}

type Indexer struct {
	store  vectorstore.Store
	poll   retry.Policy
	logger *zap.Logger
}

func NewIndexer(store vectorstore.Store, pollInterval time.Duration, pollAttempts int, logger *zap.Logger) *Indexer {
	return &Indexer{
		store:  store,
		poll:   retry.Policy{Attempts: pollAttempts, Delay: pollInterval},
		logger: logging.OrNop(logger),
	}
}

// IndexChunks zips chunks with vectors and indexes them.
func (ix *Indexer) IndexChunks(ctx context.Context, namespace string, chunks []model.Chunk, vectors [][]float32, tags IndexTags) (*IndexReceipt, error) {
	pairs, err := Zip(chunks, vectors)
	if err != nil {
		return nil, err
	}
	return ix.Index(ctx, namespace, pairs, tags)
}

// Index writes all pairs in one batch, then polls until a probe query sees
// them. An unconfirmed write is logged and reported on the receipt; it is
// not an error.
func (ix *Indexer) Index(ctx context.Context, namespace string, pairs []EmbeddedChunk, tags IndexTags) (*IndexReceipt, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("nothing to index")
	}
	if tags.DocumentID == "" {
		tags.DocumentID = uuid.NewString()
	}

	entries := make([]vectorstore.Entry, len(pairs))
	ids := make([]string, len(pairs))
	for i, p := range pairs {
		ids[i] = uuid.NewString()
		entries[i] = vectorstore.Entry{
			ID:     ids[i],
			Vector: p.Vector,
			Metadata: vectorstore.Metadata{
				Text:       p.Chunk.Text,
				PageNumber: p.Chunk.PageNumber,
				ChunkIndex: p.Chunk.Index,
				ChatID:     tags.ChatID,
				FileName:   tags.FileName,
				DocumentID: tags.DocumentID,
				Tags:       tags.Extra,
			},
		}
	}

	if err := ix.store.Upsert(ctx, namespace, entries); err != nil {
		return nil, fmt.Errorf("upsert entries failed: %w", err)
	}
	chunksIndexed.Add(float64(len(entries)))

	receipt := &IndexReceipt{Namespace: namespace, DocumentID: tags.DocumentID, EntryIDs: ids}
	attempts, visible, err := ix.waitVisible(ctx, namespace, pairs[0].Vector, tags.DocumentID)
	if err != nil {
		return nil, err
	}
	receipt.Visible = visible
	receipt.ProbeAttempts = attempts

	if !visible {
		visibilityTimeouts.Inc()
		ix.logger.Warn("index write not visible yet, continuing",
			zap.String("namespace", namespace),
			zap.String("document_id", tags.DocumentID),
			zap.Int("attempts", attempts),
			zap.Error(ErrIndexVisibilityTimeout),
		)
	}
	return receipt, nil
}

// waitVisible only fails when ctx ends; probe errors count as "not yet".
func (ix *Indexer) waitVisible(ctx context.Context, namespace string, vector []float32, documentID string) (int, bool, error) {
	probe := vectorstore.Query{Vector: vector, TopK: 1, DocumentID: documentID}
	return retry.Until(ctx, ix.poll, func(ctx context.Context) (bool, error) {
		matches, err := ix.store.Query(ctx, namespace, probe)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			ix.logger.Debug("visibility probe failed", zap.String("namespace", namespace), zap.Error(err))
			return false, nil
		}
		return len(matches) > 0, nil
	}, nil)
}
