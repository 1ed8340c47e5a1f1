package mqtt

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	qos     byte
	handler MessageHandler
}

// SubscriptionTracker is the set of topics the client has asked for.
//
// Entries are only ever added. A topic is added the first time it is
// subscribed and stays until the process exits, whether or not the broker
// acknowledged it. After every reconnect the whole set is replayed.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type SubscriptionTracker struct {
	subs cmap.ConcurrentMap[string, subscription]
}

// NewSubscriptionTracker returns an empty tracker.
func NewSubscriptionTracker() *SubscriptionTracker {
	return &SubscriptionTracker{subs: cmap.New[subscription]()}
}

// Add records a subscription. It reports false, and keeps the existing
// entry, when the topic is already tracked.
func (t *SubscriptionTracker) Add(topic string, qos byte, handler MessageHandler) bool {
	return t.subs.SetIfAbsent(topic, subscription{qos: qos, handler: handler})
}

// Has reports whether topic is tracked.
func (t *SubscriptionTracker) Has(topic string) bool {
	return t.subs.Has(topic)
}

// Len returns the number of tracked topics.
func (t *SubscriptionTracker) Len() int {
	return t.subs.Count()
}

// Topics returns the tracked topics in lexical order.
func (t *SubscriptionTracker) Topics() []string {
	keys := t.subs.Keys()
	sort.Strings(keys)
	return keys
}

// Replay calls fn once for every tracked subscription and returns how many
// were visited.
func (t *SubscriptionTracker) Replay(fn func(topic string, qos byte, handler MessageHandler)) int {
	n := 0
	for item := range t.subs.IterBuffered() {
		fn(item.Key, item.Val.qos, item.Val.handler)
		n++
	}
	return n
}
