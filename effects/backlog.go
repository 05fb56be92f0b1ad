package effects

import (
	"sync"

	"leaveflow/notify"
)

// MaxAttempts bounds how often a notification is delivered before it is
// dropped.
const MaxAttempts = 5

// DefaultBacklogSize is the number of undelivered notifications kept in
// memory.
const DefaultBacklogSize = 1000

type pending struct {
	notification notify.Notification
	attempts     int
}

// Backlog holds notifications whose delivery failed. When full, the oldest
// entry is dropped.
type Backlog struct {
	mu       sync.Mutex
	items    []pending
	capacity int
	dropped  int
}

func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = DefaultBacklogSize
	}
	return &Backlog{capacity: capacity}
}

// Push queues n after attempts failed deliveries. It reports false when n has
// used up its attempts.
func (b *Backlog) Push(n notify.Notification, attempts int) bool {
	if attempts >= MaxAttempts {
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.capacity {
		b.items = b.items[1:]
		b.dropped++
	}
	b.items = append(b.items, pending{notification: n, attempts: attempts})
	return true
}

func (b *Backlog) drain() []pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped is the number of notifications given up on.
func (b *Backlog) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
