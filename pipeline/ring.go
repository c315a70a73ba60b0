// Package pipeline implements the recording pipeline: the pre-buffer ring,
// the durable file sinks, the capture session that routes sample delivery,
// and the recorder state machine that drives them.
package pipeline

import (
	"sync"
	"time"

	"github.com/dstanton/minute/audio"
)

// PreBufferRing holds the most recent stretch of captured audio, bounded by
// total duration rather than element count. Once the running duration exceeds
// the ceiling the oldest buffers are evicted — except that the ring never
// evicts its last element, so a single oversized buffer may sit above the
// ceiling. Each buffer is evicted at most once, so pushes are O(1) amortized.
type PreBufferRing struct {
	mu      sync.Mutex
	buffers []audio.SampleBuffer
	total   time.Duration
	ceiling time.Duration
}

func NewPreBufferRing(ceiling time.Duration) *PreBufferRing {
	return &PreBufferRing{ceiling: ceiling}
}

// Push appends a buffer and evicts from the front until the running duration
// fits the ceiling or only one element remains.
func (r *PreBufferRing) Push(buf audio.SampleBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffers = append(r.buffers, buf)
	r.total += buf.Duration()

	for r.total > r.ceiling && len(r.buffers) > 1 {
		r.total -= r.buffers[0].Duration()
		r.buffers[0] = audio.SampleBuffer{}
		r.buffers = r.buffers[1:]
	}
}

// DrainAll removes and returns every buffer in insertion order, leaving the
// ring empty with zero running duration.
func (r *PreBufferRing) DrainAll() []audio.SampleBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := r.buffers
	r.buffers = nil
	r.total = 0
	return drained
}

// Discard drops all buffers without returning them.
func (r *PreBufferRing) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffers = nil
	r.total = 0
}

func (r *PreBufferRing) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}

// Duration is the running total duration of all held buffers.
func (r *PreBufferRing) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
