package badge

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Broker fans badge updates out to every subscriber.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Update
	nextID      atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Update),
	}
}

// Subscribe registers a new listener. The returned channel is buffered; a
// listener that falls behind misses updates rather than stalling painters.
func (b *Broker) Subscribe() (int64, <-chan Update) {
	id := b.nextID.Add(1)
	ch := make(chan Update, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish hands the update to every listener without blocking.
func (b *Broker) Publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

// ClientCount returns the number of listeners.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
