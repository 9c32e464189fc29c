// Package events is a small in-process pub/sub bus. The engine publishes
// queue-change and sync-error notifications on it so the UI layer can keep
// badges and counters current without polling.
package events

import "sync"

// Topic names one notification stream.
type Topic string

const (
	// TopicQueueChanged fires whenever the mutation queue gains, loses or
	// changes an item. Payload: models.SyncStatus.
	TopicQueueChanged Topic = "sync-queue-changed"

	// TopicSyncError fires once per failed queue item in a sync pass.
	// Payload: models.SyncError.
	TopicSyncError Topic = "sync-error"
)

// Handler receives the payload published on a topic. Handlers run
// synchronously on the publisher's goroutine and must not block.
type Handler func(payload any)

// Bus fans out published payloads to subscribers. Safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]Handler)}
}

// Subscribe registers h for topic. There is no unsubscribe; subscriptions
// live as long as the bus.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish delivers payload to every subscriber of topic.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	handlers := b.subs[topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}
