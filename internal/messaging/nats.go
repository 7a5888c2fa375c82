// Package messaging provides a NATS client wrapper used as the change feed
// behind the Redis-backed document store. Every document write publishes an
// invalidation event on a per-collection subject; live queries subscribe to
// the subject for their collection and re-read on each event.
package messaging

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectDocs is the subject prefix for document change events. The full
// subject is docs.<collection> with path separators mapped to dots, e.g.
// chats/abc_def/messages -> docs.chats.abc_def.messages.
const SubjectDocs = "docs"

// NATSClient wraps the NATS connection with helper methods for the document
// change feed. Subscriptions are tracked by caller-chosen keys so multiple
// watchers of the same collection do not overwrite each other.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "taskchat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// SubjectForCollection maps a collection path to its change-feed subject.
func SubjectForCollection(collection string) string {
	return SubjectDocs + "." + strings.ReplaceAll(collection, "/", ".")
}

// PublishDocsChanged announces that a document in the collection was written.
// The payload is empty: subscribers re-read the store rather than trusting
// event contents.
func (c *NATSClient) PublishDocsChanged(collection string) error {
	return c.conn.Publish(SubjectForCollection(collection), nil)
}

// SubscribeDocsChanged registers a handler for change events on the
// collection, stored under the given key for later removal. NATS invokes the
// handler from a single goroutine per subscription, so deliveries to one
// handler never overlap.
func (c *NATSClient) SubscribeDocsChanged(key, collection string, handler func()) error {
	subject := SubjectForCollection(collection)
	sub, err := c.conn.Subscribe(subject, func(_ *nats.Msg) {
		handler()
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// Unsubscribe removes the subscription stored under key. Unknown keys are a
// no-op.
func (c *NATSClient) Unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe: %w", err)
	}
	return nil
}

// Close drains all subscriptions and closes the connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	for key, sub := range c.subs {
		_ = sub.Unsubscribe()
		delete(c.subs, key)
	}
	c.mu.Unlock()
	c.conn.Close()
}
