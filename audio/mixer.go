package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrFormatMismatch is returned when the two source files do not share the
// mixer's configured PCM layout. Mixing across formats is not supported.
var ErrFormatMismatch = errors.New("source files have mismatched PCM formats")

// SourceReadError wraps a failure to read one of the two temporary capture
// files.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("failed to read mix source %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// DestinationWriteError wraps a failure to produce the final artifact.
type DestinationWriteError struct {
	Path string
	Err  error
}

func (e *DestinationWriteError) Error() string {
	return fmt.Sprintf("failed to write mix destination %s: %v", e.Path, e.Err)
}

func (e *DestinationWriteError) Unwrap() error { return e.Err }

// Mixer merges the two independently captured streams (system audio and
// microphone) into one file. Mixing is additive with hard clipping: loud
// simultaneous speech can clip, which is an accepted trade-off. There is no
// normalization or gain staging.
type Mixer struct {
	format Format
}

func NewMixer(format Format) *Mixer {
	return &Mixer{format: format}
}

// Mix reads both source files fully, sums them frame by frame and writes the
// result to destPath, replacing any existing file. The shorter stream
// contributes silence past its end, so the output always spans
// max(systemFrames, micFrames) frames. Two zero-length inputs produce a valid
// zero-length file. The source files are left untouched.
func (m *Mixer) Mix(systemPath, micPath, destPath string) error {
	systemFormat, systemSamples, err := ReadWavFile(systemPath)
	if err != nil {
		return &SourceReadError{Path: systemPath, Err: err}
	}
	micFormat, micSamples, err := ReadWavFile(micPath)
	if err != nil {
		return &SourceReadError{Path: micPath, Err: err}
	}

	if systemFormat != m.format || micFormat != m.format {
		return fmt.Errorf("%w: system=%s mic=%s want=%s",
			ErrFormatMismatch, systemFormat, micFormat, m.format)
	}

	mixed := mixSamples(systemSamples, micSamples)

	// Stage under a ".tmp" name and rename into place: the recordings
	// listing and the transcription watcher both ignore ".tmp" files, so
	// neither ever observes a partially written artifact.
	stagePath := destPath + ".tmp"
	if err := WriteWavFile(stagePath, m.format, mixed); err != nil {
		os.Remove(stagePath)
		return &DestinationWriteError{Path: destPath, Err: err}
	}
	if err := os.Rename(stagePath, destPath); err != nil {
		os.Remove(stagePath)
		return &DestinationWriteError{Path: destPath, Err: err}
	}

	slog.Info("Mixed recording streams",
		"systemFrames", len(systemSamples)/m.format.Channels,
		"micFrames", len(micSamples)/m.format.Channels,
		"destination", destPath)

	return nil
}

// mixSamples sums two interleaved streams sample by sample, clamping into the
// int16 range. Sample index doubles as (frame, channel) position because both
// streams share one layout, so summing by index is frame-aligned.
func mixSamples(system, mic []int16) []int16 {
	n := len(system)
	if len(mic) > n {
		n = len(mic)
	}

	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int32
		if i < len(system) {
			sum += int32(system[i])
		}
		if i < len(mic) {
			sum += int32(mic[i])
		}
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}
		out[i] = int16(sum)
	}
	return out
}
