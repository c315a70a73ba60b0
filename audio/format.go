package audio

import (
	"fmt"
	"time"
)

// Format describes an uncompressed linear-PCM stream layout. Every stage of
// the pipeline (capture, ring, sinks, mixer) carries the same format; the
// mixer refuses inputs whose formats differ.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is the capture configuration used for meeting recordings:
// 48kHz stereo 16-bit signed little-endian.
var DefaultFormat = Format{
	SampleRate:    48000,
	Channels:      2,
	BitsPerSample: 16,
}

func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

// FramesDuration converts a frame count into wall-clock time at this format's
// sample rate.
func (f Format) FramesDuration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / float64(f.SampleRate) * float64(time.Second))
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitsPerSample)
}
