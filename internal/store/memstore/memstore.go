// Package memstore provides an in-memory implementation of the store.Store
// boundary. It backs tests and single-node runs: documents live in
// mutex-guarded maps and every write re-evaluates the registered live
// queries, delivering fresh snapshots synchronously before the write returns.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/byteofhoney/TaskChatApp/internal/metrics"
	"github.com/byteofhoney/TaskChatApp/internal/store"
)

// Store is an in-memory document store. The zero value is not usable; create
// one with New.
type Store struct {
	mu   sync.Mutex
	cols map[string]map[string]store.Fields // collection -> id -> fields
	subs map[*subscription]struct{}
}

type subscription struct {
	query store.Query
	sub   *store.Sub
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		cols: make(map[string]map[string]store.Fields),
		subs: make(map[*subscription]struct{}),
	}
}

// GetOnce returns the document at path, or (nil, nil) if it does not exist.
func (s *Store) GetOnce(_ context.Context, path string) (*store.Doc, error) {
	collection, id := store.Split(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.cols[collection][id]
	if !ok {
		return nil, nil
	}
	return &store.Doc{ID: id, Fields: cloneFields(fields)}, nil
}

// Set writes the full field set at path, replacing any existing document.
func (s *Store) Set(_ context.Context, path string, fields store.Fields) error {
	collection, id := store.Split(path)
	s.write(collection, id, fields, false)
	return nil
}

// SetMerge writes only the given fields at path, preserving existing fields
// that are not part of the write. An absent document is created.
func (s *Store) SetMerge(_ context.Context, path string, fields store.Fields) error {
	collection, id := store.Split(path)
	s.write(collection, id, fields, true)
	return nil
}

// Add appends a document with a generated id to the collection and returns
// the id.
func (s *Store) Add(_ context.Context, collection string, fields store.Fields) (string, error) {
	id := uuid.NewString()
	s.write(collection, id, fields, false)
	return id, nil
}

// GetAll runs the query once and returns the matching documents, ordered per
// the query.
func (s *Store) GetAll(_ context.Context, q store.Query) ([]store.Doc, error) {
	s.mu.Lock()
	docs := s.evaluate(q)
	s.mu.Unlock()
	return docs, nil
}

// Subscribe registers a live query. The callback receives the current result
// set before Subscribe returns, and a fresh full result set after every
// write to the query's collection, until the subscription is released.
func (s *Store) Subscribe(q store.Query, fn func(store.Snapshot)) (store.Subscription, error) {
	entry := &subscription{query: q}
	entry.sub = store.NewSub(fn, func() {
		s.mu.Lock()
		delete(s.subs, entry)
		s.mu.Unlock()
		metrics.SubscriptionsActive.Dec()
	})
	metrics.SubscriptionsActive.Inc()

	s.mu.Lock()
	s.subs[entry] = struct{}{}
	docs := s.evaluate(q)
	s.mu.Unlock()

	entry.sub.Deliver(store.Snapshot{Docs: docs})
	return entry.sub, nil
}

// write mutates the document and then pushes updated snapshots to every
// subscription watching the affected collection. Deliveries happen outside
// the store lock so callbacks may read the store.
func (s *Store) write(collection, id string, fields store.Fields, merge bool) {
	s.mu.Lock()
	col, ok := s.cols[collection]
	if !ok {
		col = make(map[string]store.Fields)
		s.cols[collection] = col
	}

	if merge {
		existing, ok := col[id]
		if !ok {
			existing = make(store.Fields)
			col[id] = existing
		}
		for k, v := range fields {
			existing[k] = v
		}
	} else {
		col[id] = cloneFields(fields)
	}

	type delivery struct {
		sub  *store.Sub
		snap store.Snapshot
	}
	var pending []delivery
	for entry := range s.subs {
		if entry.query.Collection != collection {
			continue
		}
		pending = append(pending, delivery{
			sub:  entry.sub,
			snap: store.Snapshot{Docs: s.evaluate(entry.query)},
		})
	}
	s.mu.Unlock()

	for _, d := range pending {
		d.sub.Deliver(d.snap)
	}
}

// evaluate runs a query against current state. Unordered queries return
// documents in id order so repeated evaluations are stable. Caller must
// hold s.mu.
func (s *Store) evaluate(q store.Query) []store.Doc {
	var docs []store.Doc
	for id, fields := range s.cols[q.Collection] {
		doc := store.Doc{ID: id, Fields: cloneFields(fields)}
		if q.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	if q.OrderBy == "" {
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	}
	q.Sort(docs)
	return docs
}

func cloneFields(fields store.Fields) store.Fields {
	out := make(store.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
