package chat

import (
	"log"
	"sort"

	"github.com/byteofhoney/TaskChatApp/internal/metrics"
	"github.com/byteofhoney/TaskChatApp/internal/store"
)

// WatchConversations subscribes to all conversations involving myID. Each
// snapshot fully replaces the observed list and is re-sorted by recency,
// most recent preview first; a conversation with a zero LastMessageTime
// sorts last. Query errors degrade to an empty list without dropping the
// subscription.
func WatchConversations(st store.Store, myID string, fn func([]Conversation)) (store.Subscription, error) {
	q := store.Query{
		Collection: ChatsCollection,
		Filters: []store.Filter{
			{Field: "participants", Op: store.OpArrayContains, Value: myID},
		},
	}
	return st.Subscribe(q, func(snap store.Snapshot) {
		metrics.SnapshotsTotal.WithLabelValues("conversations").Inc()
		if snap.Err != nil {
			log.Printf("[chat] conversation query for %s failed: %v", myID, snap.Err)
			fn([]Conversation{})
			return
		}
		convs := conversationsFromDocs(snap.Docs)
		sort.SliceStable(convs, func(i, j int) bool {
			return convs[i].LastMessageTime.After(convs[j].LastMessageTime)
		})
		fn(convs)
	})
}

// WatchMessages subscribes to one conversation's messages, ordered by
// timestamp ascending inside the store's query evaluator. Callers switching
// conversations must release the previous subscription before subscribing
// again, or snapshots from both conversations will interleave.
func WatchMessages(st store.Store, conversationID string, fn func([]Message)) (store.Subscription, error) {
	q := store.Query{
		Collection: MessagesCollection(conversationID),
		OrderBy:    "timestamp",
		Asc:        true,
	}
	return st.Subscribe(q, func(snap store.Snapshot) {
		metrics.SnapshotsTotal.WithLabelValues("messages").Inc()
		if snap.Err != nil {
			log.Printf("[chat] message query for %s failed: %v", conversationID, snap.Err)
			fn([]Message{})
			return
		}
		fn(messagesFromDocs(snap.Docs))
	})
}
