package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
)

// ChromemStore keeps one chromem collection per namespace. It is used by the
// CLI and in tests; writes are visible immediately.
type ChromemStore struct {
	db *chromem.DB
}

func NewChromemStore(db *chromem.DB) *ChromemStore {
	if db == nil {
		db = chromem.NewDB()
	}
	return &ChromemStore{db: db}
}

// NewPersistentChromemStore stores collections under path.
func NewPersistentChromemStore(path string, compress bool) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db failed: %w", err)
	}
	return &ChromemStore{db: db}, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	if err := validateUpsert(namespace, entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	col, err := s.db.GetOrCreateCollection(namespace, nil, nil)
	if err != nil {
		return fmt.Errorf("get chromem collection failed: %w", err)
	}

	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	metadatas := make([]map[string]string, len(entries))
	contents := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		vectors[i] = e.Vector
		metadatas[i] = e.Metadata.flatten()
		contents[i] = e.Metadata.Text
	}
	if err := col.Add(ctx, ids, vectors, metadatas, contents); err != nil {
		return fmt.Errorf("add chromem documents failed: %w", err)
	}
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, namespace string, q Query) ([]Match, error) {
	if namespace == "" {
		return nil, ErrInvalidNamespace
	}
	col := s.db.GetCollection(namespace, nil)
	if col == nil {
		return nil, nil
	}
	// chromem rejects nResults above the collection size.
	k := min(q.TopK, col.Count())
	if k <= 0 {
		return nil, nil
	}

	where := map[string]string{}
	if q.PageNumber > 0 {
		where[keyPageNumber] = strconv.Itoa(q.PageNumber)
	}
	if q.DocumentID != "" {
		where[keyDocumentID] = q.DocumentID
	}

	results, err := col.QueryEmbedding(ctx, q.Vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query chromem collection failed: %w", err)
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: unflatten(r.Content, r.Metadata),
		})
	}
	SortMatches(matches)
	return matches, nil
}
