package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// ContextEntry is what a context lookup produced. MissingPage is set when
// the query named a page the namespace does not hold.
type ContextEntry struct {
	Context     string `json:"context"`
	MissingPage int    `json:"missing_page,omitempty"`
}

// ContextCache memoizes assembled context per namespace. Every namespace has
// a version counter; bumping it orphans all earlier entries, which then
// expire through their TTL.
type ContextCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewContextCache(client *redisv9.Client, ttl time.Duration) *ContextCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ContextCache{client: client, ttl: ttl}
}

// Key resolves the entry key for query under the namespace's current
// version. Resolve it before retrieving and pass the same key to Set, so a
// result computed before an Invalidate lands under the orphaned version.
func (c *ContextCache) Key(ctx context.Context, namespace, query string, topK int) (string, error) {
	v, err := c.version(ctx, namespace)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query)) + "\x00" + strconv.Itoa(topK)))
	return fmt.Sprintf("ctx:%s:%d:%s", namespace, v, hex.EncodeToString(sum[:16])), nil
}

func (c *ContextCache) Get(ctx context.Context, key string) (*ContextEntry, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get context failed: %w", err)
	}

	var entry ContextEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached context failed: %w", err)
	}
	return &entry, true, nil
}

func (c *ContextCache) Set(ctx context.Context, key string, entry ContextEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal context cache failed: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set context failed: %w", err)
	}
	return nil
}

// Invalidate drops every cached context of namespace. Call it after new
// content lands in the namespace.
func (c *ContextCache) Invalidate(ctx context.Context, namespace string) error {
	if err := c.client.Incr(ctx, c.versionKey(namespace)).Err(); err != nil {
		return fmt.Errorf("redis bump context version failed: %w", err)
	}
	return nil
}

func (c *ContextCache) version(ctx context.Context, namespace string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(namespace)).Int64()
	if errors.Is(err, redisv9.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get context version failed: %w", err)
	}
	return v, nil
}

func (c *ContextCache) versionKey(namespace string) string {
	return "ctx:ver:" + namespace
}
