// Package store defines the realtime document store boundary used by the
// chat core: one-time reads, merge writes, appends with store-generated ids,
// and live queries that push a full result set on every underlying change
// until released. Documents live under slash-separated paths
// (users/{id}, chats/{id}, chats/{id}/messages/{id}).
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fields is the schemaless field set of a single document.
type Fields map[string]any

// Doc is one document returned by a read or query.
type Doc struct {
	ID     string
	Fields Fields
}

// String returns the named field as a string, or "" if absent or not a string.
func (d Doc) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Strings returns the named field as a string slice. It accepts both []string
// and []any (the shape produced by JSON decoding), skipping non-string items.
func (d Doc) Strings(field string) []string {
	switch v := d.Fields[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time returns the named field as a time.Time. It accepts both time.Time
// values and RFC 3339 strings (the shape produced by JSON decoding). Absent
// or unparseable fields yield the zero time.
func (d Doc) Time(field string) time.Time {
	switch v := d.Fields[field].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}

// Filter operators supported by Query.
const (
	OpEqual         = "=="
	OpArrayContains = "array-contains"
)

// Filter is a single field predicate on a query.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query describes a filtered, optionally ordered read over one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string // field name; empty for unordered
	Asc        bool
}

// Matches reports whether the document satisfies every filter on the query.
// Unknown operators never match.
func (q Query) Matches(d Doc) bool {
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual:
			if d.Fields[f.Field] != f.Value {
				return false
			}
		case OpArrayContains:
			want, _ := f.Value.(string)
			found := false
			for _, s := range d.Strings(f.Field) {
				if s == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Sort orders docs in place according to the query's OrderBy field. Timestamp
// fields compare chronologically, everything else lexically; the sort is
// stable so equal keys keep insertion order.
func (q Query) Sort(docs []Doc) {
	if q.OrderBy == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		less := fieldLess(docs[i], docs[j], q.OrderBy)
		if q.Asc {
			return less
		}
		return fieldLess(docs[j], docs[i], q.OrderBy)
	})
}

func fieldLess(a, b Doc, field string) bool {
	at, bt := a.Time(field), b.Time(field)
	if !at.IsZero() || !bt.IsZero() {
		return at.Before(bt)
	}
	return a.String(field) < b.String(field)
}

// Snapshot is one delivery of a live query: the full, replaced result set.
// When the underlying query failed, Err is set and Docs is empty.
type Snapshot struct {
	Docs []Doc
	Err  error
}

// Subscription is the handle for one live query. Release is idempotent and
// guarantees that the callback is not invoked again after Release returns.
type Subscription interface {
	Release()
}

// Store is the realtime document store consumed by the chat core. GetOnce
// returns (nil, nil) for an absent document. SetMerge updates only the given
// fields, preserving the rest. Add appends a document with a store-generated
// id. Subscribe registers a live query; the callback receives the current
// result set immediately and again after every relevant change, serialized
// per subscription.
type Store interface {
	GetOnce(ctx context.Context, path string) (*Doc, error)
	Set(ctx context.Context, path string, fields Fields) error
	SetMerge(ctx context.Context, path string, fields Fields) error
	Add(ctx context.Context, collection string, fields Fields) (string, error)
	GetAll(ctx context.Context, q Query) ([]Doc, error)
	Subscribe(q Query, fn func(Snapshot)) (Subscription, error)
}

// Join builds a document path from a collection path and a document id.
func Join(collection, id string) string {
	return collection + "/" + id
}

// Split breaks a document path into its collection path and document id.
func Split(path string) (collection, id string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Sub serializes snapshot deliveries to a single callback and makes release
// idempotent. Backends embed or hold one per subscription: Deliver after
// Release is a no-op, and Release blocks until any in-flight delivery has
// finished, so no callback runs after Release returns.
type Sub struct {
	mu        sync.Mutex
	fn        func(Snapshot)
	released  bool
	onRelease func()
}

// NewSub creates a Sub for the given callback. onRelease runs exactly once,
// on the first Release call, after delivery is shut off; it may be nil.
func NewSub(fn func(Snapshot), onRelease func()) *Sub {
	return &Sub{fn: fn, onRelease: onRelease}
}

// Deliver invokes the callback with the snapshot unless the subscription has
// been released. Deliveries are mutually exclusive. The callback must not
// call Release on its own subscription.
func (s *Sub) Deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.fn(snap)
}

// Release shuts off delivery. Calling it again is a no-op.
func (s *Sub) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	onRelease := s.onRelease
	s.mu.Unlock()

	if onRelease != nil {
		onRelease()
	}
}
