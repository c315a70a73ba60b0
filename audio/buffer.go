package audio

import "time"

// SampleBuffer is the atomic unit moved through the capture pipeline: one
// chunk of interleaved PCM samples with the time it was captured. A buffer is
// immutable once produced. The producer hands ownership to exactly one
// consumer (ring or sink); neither side may mutate the payload afterwards.
type SampleBuffer struct {
	samples  []int16
	format   Format
	captured time.Time
}

// NewSampleBuffer wraps samples into a buffer. The capture callback must pass
// a private copy: the buffer takes ownership of the slice and the caller must
// not retain it.
func NewSampleBuffer(samples []int16, format Format, captured time.Time) SampleBuffer {
	return SampleBuffer{samples: samples, format: format, captured: captured}
}

// Samples exposes the interleaved payload. Read-only by contract.
func (b SampleBuffer) Samples() []int16 { return b.samples }

func (b SampleBuffer) Format() Format { return b.format }

func (b SampleBuffer) Captured() time.Time { return b.captured }

func (b SampleBuffer) FrameCount() int {
	if b.format.Channels <= 0 {
		return 0
	}
	return len(b.samples) / b.format.Channels
}

// Duration is FrameCount / SampleRate.
func (b SampleBuffer) Duration() time.Duration {
	return b.format.FramesDuration(b.FrameCount())
}
