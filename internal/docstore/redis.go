package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultNamespace  = "friendchat"
	maxUpdateAttempts = 8
	scanBatch         = 200
)

// Index declares a field kept in a Redis set per value, so Find on it reads only the matching
// documents. String fields are indexed by value, string arrays by element.
type Index struct {
	Collection string
	Field      string
}

// RedisStore keeps one JSON string per document at <namespace>:<collection>:<id>. Indexed fields
// live in sets at <namespace>:idx:<collection>:<field>:<value>, written in the same MULTI as the
// document.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	indexes   map[string][]string
}

// NewRedisStore wraps an existing client. An empty namespace selects "friendchat".
func NewRedisStore(client redis.UniversalClient, namespace string, indexes ...Index) *RedisStore {
	if namespace == "" {
		namespace = defaultNamespace
	}
	byCollection := make(map[string][]string)
	for _, idx := range indexes {
		byCollection[idx.Collection] = append(byCollection[idx.Collection], idx.Field)
	}
	return &RedisStore{client: client, namespace: namespace, indexes: byCollection}
}

func (s *RedisStore) prefix(collection string) string {
	return s.namespace + ":" + collection + ":"
}

func (s *RedisStore) key(collection, id string) string {
	return s.prefix(collection) + id
}

func (s *RedisStore) indexKey(collection, field, value string) string {
	return s.namespace + ":idx:" + collection + ":" + field + ":" + value
}

func (s *RedisStore) indexed(collection, field string) bool {
	for _, f := range s.indexes[collection] {
		if f == field {
			return true
		}
	}
	return false
}

// indexKeys lists the index sets body belongs to. A nil or undecodable body belongs to none.
func (s *RedisStore) indexKeys(collection string, body []byte) map[string]struct{} {
	fields := s.indexes[collection]
	if len(fields) == 0 || body == nil {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil
	}
	keys := make(map[string]struct{})
	for _, field := range fields {
		switch v := decoded[field].(type) {
		case string:
			keys[s.indexKey(collection, field, v)] = struct{}{}
		case []any:
			for _, item := range v {
				if str, ok := item.(string); ok {
					keys[s.indexKey(collection, field, str)] = struct{}{}
				}
			}
		}
	}
	return keys
}

// queueReindex moves id from the index sets of oldBody to those of newBody.
func (s *RedisStore) queueReindex(ctx context.Context, pipe redis.Pipeliner, collection, id string, oldBody, newBody []byte) {
	before := s.indexKeys(collection, oldBody)
	after := s.indexKeys(collection, newBody)
	for k := range before {
		if _, keep := after[k]; !keep {
			pipe.SRem(ctx, k, id)
		}
	}
	for k := range after {
		if _, had := before[k]; !had {
			pipe.SAdd(ctx, k, id)
		}
	}
}

// Get fetches a single document.
func (s *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	val, err := s.client.Get(ctx, s.key(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return Document{}, unavailable("redis get", err)
	}
	return Document{ID: id, Data: val}, nil
}

// Create stores data under a new UUID. SETNX guards against the (unlikely) id collision.
func (s *RedisStore) Create(ctx context.Context, collection string, data any) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode %s document: %w", collection, err)
	}
	id := uuid.NewString()
	var setNX *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setNX = pipe.SetNX(ctx, s.key(collection, id), body, 0)
		s.queueReindex(ctx, pipe, collection, id, nil, body)
		return nil
	})
	if err != nil {
		return "", unavailable("redis create", err)
	}
	if !setNX.Val() {
		return "", fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
	}
	return id, nil
}

// Set creates or replaces a document.
func (s *RedisStore) Set(ctx context.Context, collection, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if len(s.indexes[collection]) > 0 {
		return s.rewrite(ctx, collection, id, func([]byte) ([]byte, error) { return body, nil })
	}
	if err := s.client.Set(ctx, s.key(collection, id), body, 0).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

// Update runs fn inside a WATCH/MULTI transaction on the document key and retries when another
// writer touched the key in between.
func (s *RedisStore) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	return s.rewrite(ctx, collection, id, func(old []byte) ([]byte, error) {
		if old == nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		doc := Document{ID: id, Data: old}
		if err := fn(&doc); err != nil {
			return nil, err
		}
		return []byte(doc.Data), nil
	})
}

// rewrite replaces the document with next(current) under WATCH, moving its index entries in the
// same MULTI. current is nil for an absent document; a nil result deletes it.
func (s *RedisStore) rewrite(ctx context.Context, collection, id string, next func(old []byte) ([]byte, error)) error {
	key := s.key(collection, id)
	var nextErr error
	txf := func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			old = nil
		case err != nil:
			return unavailable("redis watch get", err)
		}
		body, err := next(old)
		if err != nil {
			nextErr = err
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if body == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, body, 0)
			}
			s.queueReindex(ctx, pipe, collection, id, old, body)
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return unavailable("redis exec", err)
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		nextErr = nil
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case nextErr != nil:
			return nextErr
		case errors.Is(err, ErrUnavailable):
			return err
		default:
			return unavailable("redis watch", err)
		}
	}
	return fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
}

// Delete removes a document; absent documents are ignored.
func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	if len(s.indexes[collection]) > 0 {
		return s.rewrite(ctx, collection, id, func([]byte) ([]byte, error) { return nil, nil })
	}
	if err := s.client.Del(ctx, s.key(collection, id)).Err(); err != nil {
		return unavailable("redis delete", err)
	}
	return nil
}

// Find reads the index set of an indexed field, or scans the whole collection otherwise, and
// filters the decoded documents.
func (s *RedisStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := checkQuery(q); err != nil {
		return nil, err
	}
	prefix := s.prefix(collection)

	var keys []string
	if s.indexed(collection, q.Field) {
		ids, err := s.client.SMembers(ctx, s.indexKey(collection, q.Field, q.Value)).Result()
		if err != nil {
			return nil, unavailable("redis smembers", err)
		}
		for _, id := range ids {
			keys = append(keys, prefix+id)
		}
	} else {
		var err error
		if keys, err = s.scanKeys(ctx, prefix); err != nil {
			return nil, err
		}
	}
	if len(keys) == 0 {
		return []Document{}, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("redis mget", err)
	}

	docs := make([]Document, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			// deleted after the keys were listed
			continue
		}
		id := strings.TrimPrefix(keys[i], prefix)
		if _, dup := seen[id]; dup {
			continue
		}
		var body map[string]any
		if err := json.Unmarshal([]byte(str), &body); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		if !matches(body, q) {
			continue
		}
		seen[id] = struct{}{}
		docs = append(docs, Document{ID: id, Data: json.RawMessage(str)})
	}
	sortByID(docs)
	return docs, nil
}

func (s *RedisStore) scanKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, unavailable("redis scan", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
