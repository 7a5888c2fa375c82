// Package redistore provides the Redis-backed implementation of the
// store.Store boundary. Documents are stored as JSON values under doc:<path>
// keys with per-collection id sets under col:<collection>; live queries are
// driven by NATS change events published after every write, each event
// triggering a re-read of the query's result set.
package redistore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/byteofhoney/TaskChatApp/internal/messaging"
	"github.com/byteofhoney/TaskChatApp/internal/metrics"
	"github.com/byteofhoney/TaskChatApp/internal/store"
)

const (
	// DocPrefix is the Redis key prefix for document JSON values.
	DocPrefix = "doc:"

	// ColPrefix is the Redis key prefix for per-collection id sets.
	ColPrefix = "col:"

	// queryTimeout bounds the re-read triggered by a change event.
	queryTimeout = 5 * time.Second
)

// Store is a Redis-backed document store with a NATS change feed.
type Store struct {
	rdb  *redis.Client
	nats *messaging.NATSClient
}

// Connect creates a Redis client for the given address and verifies the
// connection with a ping.
func Connect(redisAddr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redistore: redis connection failed: %w", err)
	}
	return client, nil
}

// New creates a Store on top of an existing Redis client and NATS client.
func New(rdb *redis.Client, nc *messaging.NATSClient) *Store {
	return &Store{rdb: rdb, nats: nc}
}

// GetOnce returns the document at path, or (nil, nil) if it does not exist.
func (s *Store) GetOnce(ctx context.Context, path string) (*store.Doc, error) {
	raw, err := s.rdb.Get(ctx, DocPrefix+path).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redistore: get %s: %w", path, err)
	}

	_, id := store.Split(path)
	doc, err := decodeDoc(id, []byte(raw))
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Set writes the full field set at path, replacing any existing document,
// and publishes a change event for the collection.
func (s *Store) Set(ctx context.Context, path string, fields store.Fields) error {
	return s.put(ctx, path, fields)
}

// SetMerge merges the given fields into the document at path, preserving
// existing fields not named in the write, and publishes a change event. The
// read-modify-write is not transactional: concurrent merges of the same
// document converge last-write-wins per field set.
func (s *Store) SetMerge(ctx context.Context, path string, fields store.Fields) error {
	existing := make(store.Fields)
	raw, err := s.rdb.Get(ctx, DocPrefix+path).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("redistore: merge read %s: %w", path, err)
	}
	if err == nil {
		if uerr := json.Unmarshal([]byte(raw), &existing); uerr != nil {
			return fmt.Errorf("redistore: merge decode %s: %w", path, uerr)
		}
	}

	for k, v := range fields {
		existing[k] = v
	}
	return s.put(ctx, path, existing)
}

// Add appends a document with a generated id to the collection and returns
// the id.
func (s *Store) Add(ctx context.Context, collection string, fields store.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.put(ctx, store.Join(collection, id), fields); err != nil {
		return "", err
	}
	return id, nil
}

// GetAll runs the query once against current Redis state and returns the
// matching documents, ordered per the query. Filtering and ordering are
// evaluated inside the store layer, so callers see results the same way
// regardless of backend.
func (s *Store) GetAll(ctx context.Context, q store.Query) ([]store.Doc, error) {
	ids, err := s.rdb.SMembers(ctx, ColPrefix+q.Collection).Result()
	if err != nil {
		return nil, fmt.Errorf("redistore: members %s: %w", q.Collection, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = DocPrefix + store.Join(q.Collection, id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redistore: mget %s: %w", q.Collection, err)
	}

	var docs []store.Doc
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // id indexed but document expired or deleted
		}
		doc, err := decodeDoc(ids[i], []byte(raw))
		if err != nil {
			log.Printf("[redistore] skipping undecodable doc %s/%s: %v", q.Collection, ids[i], err)
			continue
		}
		if q.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	q.Sort(docs)
	return docs, nil
}

// Subscribe registers a live query. The current result set is delivered
// before Subscribe returns; afterwards every change event on the collection
// triggers a re-read and a fresh snapshot, until the subscription is
// released. A failed re-read is delivered as a snapshot carrying the error.
func (s *Store) Subscribe(q store.Query, fn func(store.Snapshot)) (store.Subscription, error) {
	key := "docsub:" + uuid.NewString()

	sub := store.NewSub(fn, func() {
		if err := s.nats.Unsubscribe(key); err != nil {
			log.Printf("[redistore] unsubscribe %s: %v", key, err)
		}
		metrics.SubscriptionsActive.Dec()
	})

	err := s.nats.SubscribeDocsChanged(key, q.Collection, func() {
		sub.Deliver(s.snapshot(q))
	})
	if err != nil {
		return nil, fmt.Errorf("redistore: subscribe %s: %w", q.Collection, err)
	}
	metrics.SubscriptionsActive.Inc()

	sub.Deliver(s.snapshot(q))
	return sub, nil
}

// snapshot evaluates the query with a bounded context, folding read failures
// into the snapshot itself.
func (s *Store) snapshot(q store.Query) store.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	docs, err := s.GetAll(ctx, q)
	if err != nil {
		log.Printf("[redistore] live query %s failed: %v", q.Collection, err)
		return store.Snapshot{Err: err}
	}
	return store.Snapshot{Docs: docs}
}

// put stores the document and its collection index entry in one pipeline,
// then publishes the change event. Event publication is best-effort: a
// missed event delays a snapshot until the next write, it cannot corrupt
// state, so the write is not failed for it.
func (s *Store) put(ctx context.Context, path string, fields store.Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("redistore: marshal %s: %w", path, err)
	}

	collection, id := store.Split(path)
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, DocPrefix+path, raw, 0)
	pipe.SAdd(ctx, ColPrefix+collection, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redistore: write %s: %w", path, err)
	}

	if err := s.nats.PublishDocsChanged(collection); err != nil {
		log.Printf("[redistore] publish change for %s: %v", collection, err)
	}
	return nil
}

func decodeDoc(id string, raw []byte) (store.Doc, error) {
	fields := make(store.Fields)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return store.Doc{}, fmt.Errorf("redistore: decode doc %s: %w", id, err)
	}
	return store.Doc{ID: id, Fields: fields}, nil
}
