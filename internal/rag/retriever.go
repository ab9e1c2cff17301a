package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfquiz/internal/logging"
	"pdfquiz/internal/model"
	"pdfquiz/internal/pkg/retry"
	"pdfquiz/internal/vectorstore"
)

// Embedder turns texts into vectors, one per text and in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

var (
	pageReference = regexp.MustCompile(`(?i)(?:^|[^\pL\pN])(?:page|pg\.?|p\.)\s*(?:number\s+|no\.?\s*|#\s*)?(\d{1,5})\b`)
	analysisWords = []string{"analyze", "analyse", "analysis", "summarize", "summarise", "summary", "overview"}

	errNoResults = errors.New("no results")
)

// ParsePageReference finds an explicit page number such as "page 5",
// "on page 3", "pg. 7" or "p. 2".
func ParsePageReference(query string) (int, bool) {
	m := pageReference.FindStringSubmatch(query)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func isAnalysisQuery(query string) bool {
	q := strings.ToLower(query)
	for _, w := range analysisWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

type RetrieverConfig struct {
	EmptyRetryDelay time.Duration
	PageFetchLimit  int
	BroadQuery      string
}

type Retriever struct {
	embedder Embedder
	store    vectorstore.Store
	cfg      RetrieverConfig
	logger   *zap.Logger
}

func NewRetriever(embedder Embedder, store vectorstore.Store, cfg RetrieverConfig, logger *zap.Logger) *Retriever {
	if cfg.PageFetchLimit <= 0 {
		cfg.PageFetchLimit = 200
	}
	if cfg.BroadQuery == "" {
		cfg.BroadQuery = "document content summary"
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg, logger: logging.OrNop(logger)}
}

// Retrieve returns passages for query ordered by descending score. A query
// naming a page returns that page's full text as one result, or a
// *PageNotAvailableError. Finding nothing is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query, namespace string, topK int) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return nil, nil
	}
	if page, ok := ParsePageReference(query); ok {
		return r.retrievePage(ctx, query, namespace, page)
	}
	return r.retrieveSemantic(ctx, query, namespace, topK)
}

func (r *Retriever) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query returned %d vectors", len(vectors))
	}
	return vectors[0], nil
}

func (r *Retriever) retrievePage(ctx context.Context, query, namespace string, page int) ([]model.SearchResult, error) {
	vector, err := r.embedOne(ctx, query)
	if err != nil {
		retrievals.WithLabelValues("page", "error").Inc()
		return nil, err
	}
	matches, err := r.store.Query(ctx, namespace, vectorstore.Query{
		Vector:     vector,
		TopK:       r.cfg.PageFetchLimit,
		PageNumber: page,
	})
	if err != nil {
		retrievals.WithLabelValues("page", "error").Inc()
		return nil, fmt.Errorf("query page %d failed: %w", page, err)
	}

	onPage := matches[:0]
	for _, m := range matches {
		if m.Metadata.PageNumber == page {
			onPage = append(onPage, m)
		}
	}
	if len(onPage) == 0 {
		retrievals.WithLabelValues("page", "not_available").Inc()
		return nil, &PageNotAvailableError{Page: page}
	}

	// Documents re-uploaded into a namespace each contribute their own
	// chunk sequence; keep them grouped.
	sort.SliceStable(onPage, func(i, j int) bool {
		a, b := onPage[i].Metadata, onPage[j].Metadata
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.ChunkIndex < b.ChunkIndex
	})

	texts := make([]string, 0, len(onPage))
	var best float32
	for i, m := range onPage {
		texts = append(texts, m.Metadata.Text)
		if i == 0 || m.Score > best {
			best = m.Score
		}
	}
	retrievals.WithLabelValues("page", "ok").Inc()
	return []model.SearchResult{{Text: strings.Join(texts, " "), PageNumber: page, Score: best}}, nil
}

func (r *Retriever) retrieveSemantic(ctx context.Context, query, namespace string, topK int) ([]model.SearchResult, error) {
	vector, err := r.embedOne(ctx, query)
	if err != nil {
		retrievals.WithLabelValues("semantic", "error").Inc()
		return nil, err
	}

	// A fresh upload may not be queryable yet, so an empty answer is
	// retried once.
	policy := retry.Policy{Attempts: 2, Delay: r.cfg.EmptyRetryDelay}
	matches, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) ([]vectorstore.Match, error) {
		matches, err := r.store.Query(ctx, namespace, vectorstore.Query{Vector: vector, TopK: topK})
		if err != nil {
			return nil, retry.Permanent(err)
		}
		if len(matches) == 0 {
			return nil, errNoResults
		}
		return matches, nil
	}, func(int, error, time.Duration) {
		r.logger.Debug("no results yet, retrying", zap.String("namespace", namespace))
	})
	if err != nil && !errors.Is(err, errNoResults) {
		retrievals.WithLabelValues("semantic", "error").Inc()
		return nil, fmt.Errorf("query namespace %s failed: %w", namespace, err)
	}

	if len(matches) == 0 && isAnalysisQuery(query) {
		r.logger.Info("broadening analysis query", zap.String("namespace", namespace))
		broad, err := r.embedOne(ctx, r.cfg.BroadQuery)
		if err != nil {
			retrievals.WithLabelValues("broad", "error").Inc()
			return nil, err
		}
		matches, err = r.store.Query(ctx, namespace, vectorstore.Query{Vector: broad, TopK: topK})
		if err != nil {
			retrievals.WithLabelValues("broad", "error").Inc()
			return nil, fmt.Errorf("broad query failed: %w", err)
		}
		recordOutcome("broad", len(matches))
		return toResults(matches), nil
	}

	recordOutcome("semantic", len(matches))
	return toResults(matches), nil
}

func recordOutcome(strategy string, n int) {
	if n == 0 {
		retrievals.WithLabelValues(strategy, "empty").Inc()
		return
	}
	retrievals.WithLabelValues(strategy, "ok").Inc()
}

func toResults(matches []vectorstore.Match) []model.SearchResult {
	if len(matches) == 0 {
		return nil
	}
	vectorstore.SortMatches(matches)
	out := make([]model.SearchResult, len(matches))
	for i, m := range matches {
		out[i] = model.SearchResult{Text: m.Metadata.Text, PageNumber: m.Metadata.PageNumber, Score: m.Score}
	}
	return out
}
