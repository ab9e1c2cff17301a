package rag

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"pdfquiz/internal/extract"
	"pdfquiz/internal/model"
	"pdfquiz/internal/pkg/pdfextract"
	"pdfquiz/internal/vectorstore"
)

const testDimension = 64

// hashEmbedder maps each word onto a bucket so texts sharing words land
// close together. It is deterministic and needs no network.
type hashEmbedder struct {
	calls atomic.Int32
	err   error
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, testDimension)
		vec[0] = 0.1
		for _, word := range strings.Fields(strings.ToLower(text)) {
			f := fnv.New32a()
			_, _ = f.Write([]byte(strings.Trim(word, ".,;:!?")))
			vec[1+int(f.Sum32()%(testDimension-1))]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		scale := float32(1 / math.Sqrt(norm))
		for j := range vec {
			vec[j] *= scale
		}
		out[i] = vec
	}
	return out, nil
}

// laggingStore hides writes from queries for the first hidden queries.
type laggingStore struct {
	vectorstore.Store

	mu      sync.Mutex
	hidden  int
	queries int
	upserts int
}

func (s *laggingStore) Upsert(ctx context.Context, namespace string, entries []vectorstore.Entry) error {
	s.mu.Lock()
	s.upserts++
	s.mu.Unlock()
	return s.Store.Upsert(ctx, namespace, entries)
}

func (s *laggingStore) Query(ctx context.Context, namespace string, q vectorstore.Query) ([]vectorstore.Match, error) {
	s.mu.Lock()
	s.queries++
	hide := s.queries <= s.hidden
	s.mu.Unlock()
	if hide {
		return nil, nil
	}
	return s.Store.Query(ctx, namespace, q)
}

func (s *laggingStore) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.DocumentReadyEvent
}

func (n *recordingNotifier) DocumentReady(_ context.Context, event model.DocumentReadyEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	cfg.PollAttempts = 3
	cfg.Retriever.EmptyRetryDelay = 0
	return cfg
}

func newTestPipeline(t *testing.T, embedder Embedder, store vectorstore.Store, notifier ReadyNotifier) *Pipeline {
	t.Helper()
	extractor := extract.NewExtractor(pdfextract.Native{}, extract.NewRasterizer(200), extract.NewOCREngine(), 2, nil)
	p, err := NewPipeline(Deps{
		Extractor: extractor,
		Embedder:  embedder,
		Store:     store,
		Notifier:  notifier,
	}, testConfig(), nil)
	require.NoError(t, err)
	return p
}

func paragraph(topic string, n int) string {
	words := make([]string, 0, n*4)
	for i := 0; i < n; i++ {
		words = append(words, "the", topic, "chapter", "explains")
	}
	return strings.Join(words, " ") + "."
}
