package user

import (
	"log"

	"github.com/byteofhoney/TaskChatApp/internal/metrics"
	"github.com/byteofhoney/TaskChatApp/internal/store"
)

// counterpartQuery builds the live query for the opposite-role directory.
func counterpartQuery(myRole Role) store.Query {
	return store.Query{
		Collection: UsersCollection,
		Filters: []store.Filter{
			{Field: "type", Op: store.OpEqual, Value: string(myRole.Counterpart())},
		},
	}
}

// WatchCounterparts subscribes to the directory of counterpart-role users.
// Each snapshot fully replaces the observed list. A failed query is logged
// and delivered as an empty list; the subscription stays registered, so a
// recovered store resumes deliveries on the next change.
func WatchCounterparts(st store.Store, myRole Role, fn func([]Profile)) (store.Subscription, error) {
	return st.Subscribe(counterpartQuery(myRole), func(snap store.Snapshot) {
		metrics.SnapshotsTotal.WithLabelValues("directory").Inc()
		if snap.Err != nil {
			log.Printf("[directory] live query for %s counterparts failed: %v", myRole, snap.Err)
			fn([]Profile{})
			return
		}
		fn(profilesFromDocs(snap.Docs))
	})
}
