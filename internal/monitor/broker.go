package monitor

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/banshee-data/touch.report/internal/skin"
)

// subscriberBuffer sizes each subscriber channel so a slow SSE client can
// lag a few cycles before it starts losing snapshots.
const subscriberBuffer = 16

// FieldBroker fans emitted field snapshots out to stream subscribers. The
// pipeline publishes from inside its cycle lock, so Publish never blocks:
// a subscriber with a full channel misses that snapshot.
type FieldBroker struct {
	mu          sync.Mutex
	subscribers map[string]chan skin.FieldSnapshot
}

// NewFieldBroker creates an empty broker.
func NewFieldBroker() *FieldBroker {
	return &FieldBroker{
		subscribers: make(map[string]chan skin.FieldSnapshot),
	}
}

// Subscribe registers a new subscriber and returns its ID and channel.
func (b *FieldBroker) Subscribe() (string, <-chan skin.FieldSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := randomID()
	ch := make(chan skin.FieldSnapshot, subscriberBuffer)
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown IDs are
// ignored.
func (b *FieldBroker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Publish delivers a snapshot to every subscriber without blocking.
func (b *FieldBroker) Publish(snap skin.FieldSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *FieldBroker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func randomID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "subscriber"
	}
	return hex.EncodeToString(buf)
}
