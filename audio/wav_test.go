package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWavRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.wav")
	samples := []int16{0, 1, -1, 32767, -32768, 12345, -12345, 7}

	require.NoError(t, WriteWavFile(path, testFormat, samples))

	format, decoded, err := ReadWavFile(path)
	require.NoError(t, err)
	assert.Equal(t, testFormat, format)
	assert.Equal(t, samples, decoded)
}

func TestWavFileInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info.wav")
	stereo := Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16}
	samples := make([]int16, 48000*2) // one second of stereo

	require.NoError(t, WriteWavFile(path, stereo, samples))

	format, frames, err := WavFileInfo(path)
	require.NoError(t, err)
	assert.Equal(t, stereo, format)
	assert.Equal(t, 48000, frames)
	assert.Equal(t, time.Second, format.FramesDuration(frames))
}

func TestWavFileInfoRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0644))

	_, _, err := WavFileInfo(path)
	assert.Error(t, err)
}

func TestUpdateWavHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patched.wav")

	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWavHeader(file, testFormat, 0))

	// Simulate a sink appending data after the placeholder header.
	payload := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	_, err = file.Write(payload)
	require.NoError(t, err)
	require.NoError(t, UpdateWavHeader(file, uint32(len(payload))))
	require.NoError(t, file.Close())

	format, frames, err := WavFileInfo(path)
	require.NoError(t, err)
	assert.Equal(t, testFormat, format)
	assert.Equal(t, 4, frames)

	_, samples, err := ReadWavFile(path)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4}, samples)
}

func TestSampleBufferDuration(t *testing.T) {
	buf := NewSampleBuffer(make([]int16, 8000), testFormat, time.Now())
	assert.Equal(t, 8000, buf.FrameCount())
	assert.Equal(t, time.Second, buf.Duration())

	stereo := Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16}
	buf = NewSampleBuffer(make([]int16, 48000), stereo, time.Now())
	assert.Equal(t, 24000, buf.FrameCount())
	assert.Equal(t, 500*time.Millisecond, buf.Duration())
}
