// Package admin serves the inspector's debug pages: a JSON status summary
// and a chart of recent velocity and displacement.
package admin

import "sync"

// DefaultHistory is the number of samples a board keeps when none is given.
const DefaultHistory = 500

// Sample is one tracker update as seen by the board.
type Sample struct {
	Seq          int64   `json:"seq"`
	Velocity     float64 `json:"velocity"`
	Displacement float64 `json:"displacement"`
}

// StatusBoard observes the velocity tracker and keeps a bounded ring of
// recent samples for display.
type StatusBoard struct {
	mu   sync.Mutex
	ring []Sample
	next int
	full bool
	seq  int64
}

func NewStatusBoard(capacity int) *StatusBoard {
	if capacity < 1 {
		capacity = DefaultHistory
	}
	return &StatusBoard{ring: make([]Sample, capacity)}
}

// Receive records a tracker update.
func (b *StatusBoard) Receive(velocity, displacement float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.ring[b.next] = Sample{Seq: b.seq, Velocity: velocity, Displacement: displacement}
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.full = true
	}
}

// Samples returns the retained samples, oldest first.
func (b *StatusBoard) Samples() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]Sample(nil), b.ring[:b.next]...)
	}
	out := make([]Sample, 0, len(b.ring))
	out = append(out, b.ring[b.next:]...)
	return append(out, b.ring[:b.next]...)
}

// Latest returns the most recent sample.
func (b *StatusBoard) Latest() (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seq == 0 {
		return Sample{}, false
	}
	i := (b.next - 1 + len(b.ring)) % len(b.ring)
	return b.ring[i], true
}
