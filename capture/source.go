// Package capture provides the audio capture sources consumed by the
// recording pipeline: system-audio loopback and the microphone. Each source
// delivers SampleBuffers on its own channel from an OS callback thread; the
// callback copies the samples and never blocks, dropping the buffer if the
// consumer falls behind.
package capture

import (
	"context"

	"github.com/dstanton/minute/audio"
)

// deliveryQueueSize is the number of in-flight callback buffers a source will
// hold before dropping. At 1024 frames per callback this is a bit over one
// second of slack at 48kHz.
const deliveryQueueSize = 64

const framesPerBuffer = 1024

// Source is one independently clocked audio producer. Start opens the OS
// device and returns the delivery channel; buffers arrive on it in capture
// order until Stop closes it. Stop is safe to call more than once.
type Source interface {
	Name() string
	Start(ctx context.Context) (<-chan audio.SampleBuffer, error)
	Stop() error
	// DroppedBuffers counts callback buffers discarded because the delivery
	// channel was full.
	DroppedBuffers() uint64
}
