// Package chat holds the conversation domain: deterministic conversation
// ids, the conversation and message models, the write commands, and the live
// conversation/message watches. Conversations live at chats/{id} with their
// messages in the chats/{id}/messages subcollection.
package chat

// ConversationID derives the canonical id for the conversation between two
// participants. It is commutative: the lexicographically smaller id always
// comes first, so both participants compute the same value and at most one
// conversation can exist per pair. Participant ids are assumed non-empty and
// free of the separator.
func ConversationID(a, b string) string {
	if a < b {
		return a + "_" + b
	}
	return b + "_" + a
}
