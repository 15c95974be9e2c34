package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"budgetrag/pkg/logger"
)

// Status classifies a cache lookup.
type Status int

const (
	// Miss means the key was absent or expired.
	Miss Status = iota
	// Hit means a cached value was found.
	Hit
	// Unavailable means the cache service could not be reached. Callers
	// treat it exactly like a Miss.
	Unavailable
)

// Result is the outcome of a cache lookup. Value is set only on Hit.
type Result struct {
	Status Status
	Value  []byte
}

// AnswerCache stores formatted query responses in Redis, keyed by document
// id and question hash, with automatic expiry. Every failure is soft: the
// caller proceeds as if the entry were missing.
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New creates an AnswerCache. A nil client disables caching; every lookup
// then reports Unavailable.
func New(client *redis.Client, ttl time.Duration, log *logger.Logger) *AnswerCache {
	return &AnswerCache{client: client, ttl: ttl, log: log}
}

// Key builds the cache key for a (document, question) pair. The question is
// hashed so arbitrary text stays out of the keyspace.
func Key(documentID, question string) string {
	sum := md5.Sum([]byte(question))
	return fmt.Sprintf("query:%s:%s", documentID, hex.EncodeToString(sum[:]))
}

// Lookup fetches the cached response for the question, if any.
func (c *AnswerCache) Lookup(ctx context.Context, documentID, question string) Result {
	if c.client == nil {
		return Result{Status: Unavailable}
	}

	value, err := c.client.Get(ctx, Key(documentID, question)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{Status: Miss}
		}
		c.log.WithError(err).Warn("Cache lookup failed, proceeding without cache")
		return Result{Status: Unavailable}
	}
	return Result{Status: Hit, Value: value}
}

// Store writes the formatted response for the question. Write failures are
// logged and swallowed.
func (c *AnswerCache) Store(ctx context.Context, documentID, question string, value []byte) {
	if c.client == nil {
		return
	}

	if err := c.client.Set(ctx, Key(documentID, question), value, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("Failed to cache query response")
		return
	}
	c.log.Debug(fmt.Sprintf("Cached response for document id %s", documentID))
}
