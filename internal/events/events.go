// Package events provides a small typed publish/subscribe broadcaster.
package events

import "sync"

// ContentChanged is published after a resolver writes upstream content back
// into the local cache.
type ContentChanged struct {
	Domain string   // "scripture", "paragraphs", "documents", "tracks", "progress"
	Keys   []string // cache ids or range keys written
}

// Broadcaster delivers values to subscribers synchronously, in subscription order.
// The zero value is ready to use.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
	order  []int
}

// Subscribe registers fn and returns a func that removes it.
func (b *Broadcaster[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]func(T))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broadcaster[T]) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers v to every current subscriber. Subscribers must not block.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	fns := make([]func(T), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
