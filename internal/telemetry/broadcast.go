package telemetry

import (
	"fmt"
	"sync"
)

// Publisher is the part of the SSE status broadcaster used by Broadcast.
type Publisher interface {
	Broadcast(level, msg string)
}

// Broadcast forwards diagnostics to a live status stream. Samples are
// decimated: each module/name pair is published once every `every` records.
// Events are always published.
type Broadcast struct {
	pub   Publisher
	every int

	mu     sync.Mutex
	counts map[string]int
}

// NewBroadcast creates a decimating broadcast sink. every <= 1 publishes
// every sample.
func NewBroadcast(pub Publisher, every int) *Broadcast {
	if every < 1 {
		every = 1
	}
	return &Broadcast{pub: pub, every: every, counts: make(map[string]int)}
}

// Record implements Sink.
func (b *Broadcast) Record(module, name string, value float64) {
	key := module + "/" + name
	b.mu.Lock()
	n := b.counts[key]
	b.counts[key] = n + 1
	b.mu.Unlock()
	if n%b.every != 0 {
		return
	}
	b.pub.Broadcast("sample", fmt.Sprintf("%s=%.3f", key, value))
}

// Count implements Sink.
func (b *Broadcast) Count(module, event string) {
	b.pub.Broadcast("event", module+": "+event)
}
