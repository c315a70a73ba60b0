// Package playback plays finished recordings through the default output
// device, useful for reviewing an artifact without leaving the terminal.
package playback

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gordonklaus/portaudio"
	wav "github.com/youpy/go-wav"
)

const framesPerBuffer = 1024

// PlayWavFile streams a WAV file to the default output device and blocks
// until the user presses Enter.
func PlayWavFile(filename string) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)

	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("failed to read WAV format: %w", err)
	}

	channels := int(format.NumChannels)

	stream, err := portaudio.OpenDefaultStream(
		0,
		channels,
		float64(format.SampleRate),
		framesPerBuffer,
		func(out []int16) {
			samples, err := reader.ReadSamples(uint32(len(out) / channels))
			if err == io.EOF {
				for i := range out {
					out[i] = 0
				}
				return
			}
			if err != nil {
				slog.Error("Error reading from WAV file", "error", err)
				return
			}

			i := 0
			for _, sample := range samples {
				for ch := 0; ch < channels && i < len(out); ch++ {
					out[i] = int16(sample.Values[ch])
					i++
				}
			}
			for ; i < len(out); i++ {
				out[i] = 0
			}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	fmt.Println("Playing audio. Press Enter to stop...")
	fmt.Scanln()

	return stream.Stop()
}
