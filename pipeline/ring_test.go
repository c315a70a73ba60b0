package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstanton/minute/audio"
)

var testFormat = audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}

// secondBuffer builds a one-second mono buffer whose samples all carry the
// given value, so eviction order is observable.
func secondBuffer(value int16) audio.SampleBuffer {
	samples := make([]int16, testFormat.SampleRate)
	for i := range samples {
		samples[i] = value
	}
	return audio.NewSampleBuffer(samples, testFormat, time.Now())
}

func bufferOfDuration(d time.Duration) audio.SampleBuffer {
	frames := int(d.Seconds() * float64(testFormat.SampleRate))
	return audio.NewSampleBuffer(make([]int16, frames), testFormat, time.Now())
}

func TestRingStaysWithinCeiling(t *testing.T) {
	ring := NewPreBufferRing(30 * time.Second)

	for i := 0; i < 100; i++ {
		ring.Push(secondBuffer(int16(i)))
		withinCeiling := ring.Duration() <= 30*time.Second
		assert.True(t, withinCeiling || ring.Count() == 1,
			"after push %d: duration=%s count=%d", i, ring.Duration(), ring.Count())
	}
}

func TestRingEvictsOldestFirst(t *testing.T) {
	ring := NewPreBufferRing(30 * time.Second)

	// 40 one-second buffers: the oldest 10 must be evicted.
	for i := 0; i < 40; i++ {
		ring.Push(secondBuffer(int16(i)))
	}

	require.Equal(t, 30, ring.Count())
	require.Equal(t, 30*time.Second, ring.Duration())

	drained := ring.DrainAll()
	require.Len(t, drained, 30)
	for i, buf := range drained {
		assert.Equal(t, int16(i+10), buf.Samples()[0], "drained element %d", i)
	}
}

func TestRingDrainReturnsInsertionOrderAndResets(t *testing.T) {
	ring := NewPreBufferRing(30 * time.Second)
	for i := 0; i < 5; i++ {
		ring.Push(secondBuffer(int16(i)))
	}

	drained := ring.DrainAll()
	require.Len(t, drained, 5)
	for i, buf := range drained {
		assert.Equal(t, int16(i), buf.Samples()[0])
	}

	assert.Equal(t, 0, ring.Count())
	assert.Equal(t, time.Duration(0), ring.Duration())
}

func TestRingNeverEvictsToEmpty(t *testing.T) {
	ring := NewPreBufferRing(30 * time.Second)

	// A single oversized buffer may exceed the ceiling.
	ring.Push(bufferOfDuration(45 * time.Second))
	assert.Equal(t, 1, ring.Count())
	assert.Equal(t, 45*time.Second, ring.Duration())

	// The next push evicts the oversized buffer, not the new one.
	ring.Push(secondBuffer(7))
	assert.Equal(t, 1, ring.Count())
	assert.Equal(t, time.Second, ring.Duration())
	drained := ring.DrainAll()
	require.Len(t, drained, 1)
	assert.Equal(t, int16(7), drained[0].Samples()[0])
}

func TestRingDiscard(t *testing.T) {
	ring := NewPreBufferRing(30 * time.Second)
	for i := 0; i < 5; i++ {
		ring.Push(secondBuffer(int16(i)))
	}

	ring.Discard()
	assert.Equal(t, 0, ring.Count())
	assert.Equal(t, time.Duration(0), ring.Duration())
	assert.Empty(t, ring.DrainAll())
}
