package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	wav "github.com/youpy/go-wav"
)

// WavHeader is the canonical 44-byte RIFF/WAVE header for PCM data. Sinks
// write a placeholder header on open and patch the sizes on finish.
type WavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WriteWavHeader writes a PCM header for the given format and data size.
func WriteWavHeader(w io.Writer, f Format, dataSize uint32) error {
	header := WavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + 36,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.BytesPerSecond()),
		BlockAlign:    uint16(f.BytesPerFrame()),
		BitsPerSample: uint16(f.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	return binary.Write(w, binary.LittleEndian, header)
}

// UpdateWavHeader patches the two size fields once the final data size is
// known. The file's format fields are left untouched.
func UpdateWavHeader(file *os.File, dataSize uint32) error {
	if _, err := file.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to ChunkSize: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, dataSize+36); err != nil {
		return fmt.Errorf("failed to write ChunkSize: %w", err)
	}

	if _, err := file.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to Subchunk2Size: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("failed to write Subchunk2Size: %w", err)
	}

	return nil
}

// WriteWavFile writes a complete PCM file: header plus interleaved samples.
// Any existing file at path is replaced.
func WriteWavFile(path string, f Format, samples []int16) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	dataSize := uint32(len(samples) * 2)
	if err := WriteWavHeader(file, f, dataSize); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if len(samples) > 0 {
		if err := binary.Write(file, binary.LittleEndian, samples); err != nil {
			return fmt.Errorf("failed to write samples: %w", err)
		}
	}
	return file.Sync()
}

// ReadWavFile decodes an entire PCM file into interleaved samples.
func ReadWavFile(path string) (Format, []int16, error) {
	file, err := os.Open(path)
	if err != nil {
		return Format{}, nil, err
	}
	defer file.Close()

	reader := wav.NewReader(file)
	wf, err := reader.Format()
	if err != nil {
		return Format{}, nil, fmt.Errorf("failed to read WAV format: %w", err)
	}

	format := Format{
		SampleRate:    int(wf.SampleRate),
		Channels:      int(wf.NumChannels),
		BitsPerSample: int(wf.BitsPerSample),
	}

	var samples []int16
	for {
		chunk, err := reader.ReadSamples(4096)
		for _, s := range chunk {
			for ch := 0; ch < format.Channels; ch++ {
				samples = append(samples, int16(s.Values[ch]))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Format{}, nil, fmt.Errorf("failed to read samples: %w", err)
		}
	}

	return format, samples, nil
}

// WavFileInfo reports the format and frame count of a PCM file without
// decoding its payload. Used by the recordings listing to derive durations.
func WavFileInfo(path string) (Format, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return Format{}, 0, err
	}
	defer file.Close()

	var header WavHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
		return Format{}, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return Format{}, 0, errors.New("not a RIFF/WAVE file")
	}

	format := Format{
		SampleRate:    int(header.SampleRate),
		Channels:      int(header.NumChannels),
		BitsPerSample: int(header.BitsPerSample),
	}
	if format.BytesPerFrame() == 0 {
		return Format{}, 0, errors.New("invalid WAV format block")
	}
	frames := int(header.Subchunk2Size) / format.BytesPerFrame()
	return format, frames, nil
}
