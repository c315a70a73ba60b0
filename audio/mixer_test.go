package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}

func writeTestWav(t *testing.T, dir, name string, f Format, samples []int16) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, WriteWavFile(path, f, samples))
	return path
}

func TestMixAdditiveWithClipping(t *testing.T) {
	dir := t.TempDir()
	system := writeTestWav(t, dir, "system.wav", testFormat, []int16{100, -200, 30000, -30000})
	mic := writeTestWav(t, dir, "mic.wav", testFormat, []int16{50, -100, 10000, -10000})
	dest := filepath.Join(dir, "mixed.wav")

	require.NoError(t, NewMixer(testFormat).Mix(system, mic, dest))

	format, mixed, err := ReadWavFile(dest)
	require.NoError(t, err)
	assert.Equal(t, testFormat, format)
	// Plain sums where they fit, hard clip where they do not.
	assert.Equal(t, []int16{150, -300, 32767, -32768}, mixed)
}

func TestMixUnequalLengthsPadsWithSilence(t *testing.T) {
	dir := t.TempDir()
	system := writeTestWav(t, dir, "system.wav", testFormat, []int16{1, 2, 3, 4, 5, 6})
	mic := writeTestWav(t, dir, "mic.wav", testFormat, []int16{10, 20})
	dest := filepath.Join(dir, "mixed.wav")

	require.NoError(t, NewMixer(testFormat).Mix(system, mic, dest))

	_, mixed, err := ReadWavFile(dest)
	require.NoError(t, err)
	require.Len(t, mixed, 6)
	assert.Equal(t, []int16{11, 22, 3, 4, 5, 6}, mixed)
}

func TestMixZeroLengthInputs(t *testing.T) {
	dir := t.TempDir()
	system := writeTestWav(t, dir, "system.wav", testFormat, nil)
	mic := writeTestWav(t, dir, "mic.wav", testFormat, nil)
	dest := filepath.Join(dir, "mixed.wav")

	require.NoError(t, NewMixer(testFormat).Mix(system, mic, dest))

	_, mixed, err := ReadWavFile(dest)
	require.NoError(t, err)
	assert.Empty(t, mixed)
}

func TestMixFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	system := writeTestWav(t, dir, "system.wav", testFormat, []int16{1})
	other := Format{SampleRate: 44100, Channels: 1, BitsPerSample: 16}
	mic := writeTestWav(t, dir, "mic.wav", other, []int16{1})
	dest := filepath.Join(dir, "mixed.wav")

	err := NewMixer(testFormat).Mix(system, mic, dest)
	assert.ErrorIs(t, err, ErrFormatMismatch)
}

func TestMixMissingSource(t *testing.T) {
	dir := t.TempDir()
	system := writeTestWav(t, dir, "system.wav", testFormat, []int16{1})
	dest := filepath.Join(dir, "mixed.wav")

	err := NewMixer(testFormat).Mix(system, filepath.Join(dir, "nope.wav"), dest)
	var readErr *SourceReadError
	require.True(t, errors.As(err, &readErr))
	assert.Contains(t, readErr.Path, "nope.wav")
}

func TestMixUnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	system := writeTestWav(t, dir, "system.wav", testFormat, []int16{1})
	mic := writeTestWav(t, dir, "mic.wav", testFormat, []int16{2})
	dest := filepath.Join(dir, "missing", "sub", "mixed.wav")

	err := NewMixer(testFormat).Mix(system, mic, dest)
	var writeErr *DestinationWriteError
	require.True(t, errors.As(err, &writeErr))
}

func TestMixStagesAndLeavesNoTempResidue(t *testing.T) {
	dir := t.TempDir()
	system := writeTestWav(t, dir, "system.wav", testFormat, []int16{1, 2})
	mic := writeTestWav(t, dir, "mic.wav", testFormat, []int16{3, 4})
	dest := filepath.Join(dir, "mixed.wav")

	require.NoError(t, NewMixer(testFormat).Mix(system, mic, dest))

	// The staged file must be gone: only the sources and the complete
	// artifact remain, so a directory watcher keyed on non-".tmp" names can
	// never pick up a half-written mix.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"system.wav", "mic.wav", "mixed.wav"}, names)

	_, mixed, err := ReadWavFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []int16{4, 6}, mixed)
}

func TestMixReplacesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	system := writeTestWav(t, dir, "system.wav", testFormat, []int16{5})
	mic := writeTestWav(t, dir, "mic.wav", testFormat, []int16{6})
	dest := writeTestWav(t, dir, "mixed.wav", testFormat, []int16{99, 99, 99})

	require.NoError(t, NewMixer(testFormat).Mix(system, mic, dest))

	_, mixed, err := ReadWavFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []int16{11}, mixed)
}
