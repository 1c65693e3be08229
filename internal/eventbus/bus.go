// Package eventbus is a small in-memory fanout used to decouple the
// orchestrator from observers (logging, status).
//
// Contract:
//   - Publish never blocks; slow subscribers drop events.
//   - Data should be small and JSON-serializable.
package eventbus

import (
	"sync"
	"time"
)

const (
	TypeRunStarted  = "run.started"
	TypeRunSkipped  = "run.skipped"
	TypeRunFinished = "run.finished"
	TypePostCreated = "post.created"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus struct {
	mu   sync.Mutex
	subs map[uint64]chan Event
	seq  uint64
}

func New() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Holding the mutex across the non-blocking sends keeps Publish safe
	// against a concurrent Unsubscribe closing a channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
