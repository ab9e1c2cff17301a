package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pdfquiz/internal/logging"
	"pdfquiz/internal/pkg/retry"
)

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	VectorSize uint64

	// MaxRetries bounds retries of transient gRPC failures.
	MaxRetries     int
	RetryBackoff   time.Duration
	MaxMessageSize int
	// RequestTimeout bounds each attempt; zero leaves it to the caller.
	RequestTimeout time.Duration
}

func (c *QdrantConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

func (c QdrantConfig) validate() error {
	if c.Collection == "" {
		return errors.New("qdrant collection name required")
	}
	if c.VectorSize == 0 {
		return errors.New("qdrant vector size required")
	}
	return nil
}

// IsTransientError reports gRPC failures worth retrying.
func IsTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore keeps every namespace in one collection and isolates them with
// a keyword payload filter.
type QdrantStore struct {
	client *qdrant.Client
	cfg    QdrantConfig
	logger *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC connection is not using TLS", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client failed: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg, logger: logger}
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

func (s *QdrantStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := s.client.HealthCheck(pingCtx); err != nil {
		return fmt.Errorf("ping qdrant failed: %w", err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		s.ensureErr = s.createCollection(ctx)
	})
	return s.ensureErr
}

// payloadIndexes are the filterable fields queries rely on.
var payloadIndexes = map[string]qdrant.FieldType{
	keyNamespace:  qdrant.FieldType_FieldTypeKeyword,
	keyDocumentID: qdrant.FieldType_FieldTypeKeyword,
	keyPageNumber: qdrant.FieldType_FieldTypeInteger,
}

// missingIndexes returns the payload fields without an index, sorted.
func missingIndexes(schema map[string]*qdrant.PayloadSchemaInfo) []string {
	var missing []string
	for field := range payloadIndexes {
		if _, ok := schema[field]; !ok {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

func (s *QdrantStore) createCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection failed: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create qdrant collection failed: %w", err)
		}
		s.logger.Info("created qdrant collection",
			zap.String("collection", s.cfg.Collection),
			zap.Uint64("vector_size", s.cfg.VectorSize),
		)
	}
	return s.ensureIndexes(ctx)
}

// ensureIndexes creates payload indexes a previous start may have missed.
func (s *QdrantStore) ensureIndexes(ctx context.Context) error {
	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("read qdrant collection info failed: %w", err)
	}
	for _, field := range missingIndexes(info.GetPayloadSchema()) {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			FieldName:      field,
			FieldType:      payloadIndexes[field].Enum(),
		})
		if err != nil {
			return fmt.Errorf("create qdrant index on %s failed: %w", field, err)
		}
		s.logger.Info("created qdrant payload index", zap.String("field", field))
	}
	return nil
}

func (s *QdrantStore) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	policy := retry.Policy{Attempts: s.cfg.MaxRetries + 1, Delay: s.cfg.RetryBackoff, Exponential: true}
	_, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (struct{}, error) {
		if s.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
			defer cancel()
		}
		if err := fn(ctx); err != nil {
			if !IsTransientError(err) {
				return struct{}{}, retry.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, func(attempt int, err error, next time.Duration) {
		s.logger.Warn("qdrant request failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})
	if err != nil {
		return fmt.Errorf("qdrant %s failed: %w", op, err)
	}
	return nil
}

func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func (s *QdrantStore) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	if err := validateUpsert(namespace, entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		payload := map[string]any{
			keyNamespace:  namespace,
			keyText:       e.Metadata.Text,
			keyPageNumber: e.Metadata.PageNumber,
			keyChunkIndex: e.Metadata.ChunkIndex,
			keyChatID:     e.Metadata.ChatID,
			keyFileName:   e.Metadata.FileName,
			keyDocumentID: e.Metadata.DocumentID,
			"entry_id":    e.ID,
		}
		for k, v := range e.Metadata.Tags {
			payload[tagPrefix+k] = v
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(e.ID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	return s.withRetry(ctx, "upsert", func(ctx context.Context) error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Wait:           qdrant.PtrOf(false),
			Points:         points,
		})
		return err
	})
}

func (s *QdrantStore) Query(ctx context.Context, namespace string, q Query) ([]Match, error) {
	if namespace == "" {
		return nil, ErrInvalidNamespace
	}
	if q.TopK <= 0 {
		return nil, nil
	}

	must := []*qdrant.Condition{qdrant.NewMatchKeyword(keyNamespace, namespace)}
	if q.PageNumber > 0 {
		must = append(must, qdrant.NewMatchInt(keyPageNumber, int64(q.PageNumber)))
	}
	if q.DocumentID != "" {
		must = append(must, qdrant.NewMatchKeyword(keyDocumentID, q.DocumentID))
	}

	var points []*qdrant.ScoredPoint
	err := s.withRetry(ctx, "query", func(ctx context.Context) error {
		var err error
		points, err = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.cfg.Collection,
			Query:          qdrant.NewQuery(q.Vector...),
			Filter:         &qdrant.Filter{Must: must},
			Limit:          qdrant.PtrOf(uint64(q.TopK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, matchFromPoint(p))
	}
	SortMatches(matches)
	return matches, nil
}

func matchFromPoint(p *qdrant.ScoredPoint) Match {
	fields := make(map[string]string, len(p.GetPayload()))
	var text string
	for k, v := range p.GetPayload() {
		switch k {
		case keyText:
			text = v.GetStringValue()
		case keyPageNumber, keyChunkIndex:
			fields[k] = strconv.FormatInt(v.GetIntegerValue(), 10)
		default:
			fields[k] = v.GetStringValue()
		}
	}
	id := fields["entry_id"]
	delete(fields, "entry_id")
	if id == "" {
		id = p.GetId().GetUuid()
	}
	return Match{ID: id, Score: p.GetScore(), Metadata: unflatten(text, fields)}
}
