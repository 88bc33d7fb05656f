// Package notify carries transient user-visible banners (send, create,
// delete and logout outcomes). Banners are fan-out only: nothing is
// persisted and a slow subscriber drops the oldest banner rather than
// blocking a mutation.
package notify

import (
	"sync"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Banner is one transient notification.
type Banner struct {
	Level  Level     `json:"level"`
	Title  string    `json:"title"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Bus fans banners out to subscribers.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Banner
	next int
}

// NewBus creates an empty banner bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Banner)}
}

// Info publishes a success banner.
func (b *Bus) Info(title, detail string) {
	b.publish(Banner{Level: LevelInfo, Title: title, Detail: detail, At: time.Now()})
}

// Error publishes a failure banner.
func (b *Bus) Error(title, detail string) {
	b.publish(Banner{Level: LevelError, Title: title, Detail: detail, At: time.Now()})
}

func (b *Bus) publish(banner Banner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- banner:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- banner:
			default:
			}
		}
	}
}

// Subscribe registers a banner consumer. The returned cancel releases it.
func (b *Bus) Subscribe() (<-chan Banner, func()) {
	ch := make(chan Banner, 8)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
}
