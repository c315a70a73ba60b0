package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dstanton/minute/audio"
)

// ErrSinkNotReady is returned by Append before Open has succeeded or after
// Finish has been called.
var ErrSinkNotReady = errors.New("sink is not ready for data")

// sinkQueueSize bounds the number of buffers waiting for disk. At 1024-frame
// buffers this is several seconds of slack at 48kHz stereo.
const sinkQueueSize = 256

// FileSink is an append-only WAV writer for one PCM stream. Appends are
// queued to a dedicated writer goroutine so the caller never performs file
// I/O; when the queue is full the buffer is dropped rather than blocking the
// delivery path, and the drop is counted. Finish flushes, patches the RIFF
// header with the final data size, closes the file, and is idempotent.
type FileSink struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	format    audio.Format
	queue     chan audio.SampleBuffer
	writerEnd chan struct{}
	open      bool
	finished  bool
	finishErr error

	dataBytes uint32 // owned by the writer goroutine until writerEnd closes
	dropped   atomic.Uint64
}

func NewFileSink() *FileSink {
	return &FileSink{}
}

// Open creates the file, writes a placeholder WAV header and starts the
// writer goroutine. The header sizes are patched on Finish.
func (s *FileSink) Open(path string, format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open || s.finished {
		return fmt.Errorf("sink already opened for %s", s.path)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sink file: %w", err)
	}
	if err := audio.WriteWavHeader(file, format, 0); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write sink header: %w", err)
	}

	s.file = file
	s.path = path
	s.format = format
	s.queue = make(chan audio.SampleBuffer, sinkQueueSize)
	s.writerEnd = make(chan struct{})
	s.open = true

	go s.writeLoop()
	return nil
}

// Append hands a buffer to the writer. It never blocks: if the writer cannot
// keep up the buffer is dropped and counted.
func (s *FileSink) Append(buf audio.SampleBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open || s.finished {
		return ErrSinkNotReady
	}

	select {
	case s.queue <- buf:
	default:
		n := s.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			slog.Warn("Sink queue full, dropping audio buffer",
				"path", s.path,
				"totalDropped", n)
		}
	}
	return nil
}

// AppendBlocking queues a buffer, waiting for queue space instead of
// dropping. Used to flush the pre-buffer backlog into a fresh sink, which can
// be far larger than the live queue. The caller must guarantee Finish cannot
// run concurrently; the recorder's transition serialization provides that.
func (s *FileSink) AppendBlocking(buf audio.SampleBuffer) error {
	s.mu.Lock()
	if !s.open || s.finished {
		s.mu.Unlock()
		return ErrSinkNotReady
	}
	queue := s.queue
	s.mu.Unlock()

	queue <- buf
	return nil
}

// Finish drains the queue, patches the header, syncs and closes the file.
// Calling it again is a no-op returning the first result.
func (s *FileSink) Finish() error {
	s.mu.Lock()
	if s.finished {
		defer s.mu.Unlock()
		return s.finishErr
	}
	if !s.open {
		s.mu.Unlock()
		return ErrSinkNotReady
	}
	s.finished = true
	close(s.queue)
	s.mu.Unlock()

	// The writer drains whatever is queued, then exits.
	<-s.writerEnd

	var err error
	if headerErr := audio.UpdateWavHeader(s.file, s.dataBytes); headerErr != nil {
		err = fmt.Errorf("failed to finalize sink header: %w", headerErr)
	}
	if syncErr := s.file.Sync(); syncErr != nil && err == nil {
		err = fmt.Errorf("failed to sync sink file: %w", syncErr)
	}
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close sink file: %w", closeErr)
	}

	s.mu.Lock()
	s.finishErr = err
	s.open = false
	s.mu.Unlock()

	slog.Debug("Sink finalized",
		"path", s.path,
		"dataBytes", s.dataBytes,
		"droppedBuffers", s.dropped.Load())

	return err
}

func (s *FileSink) writeLoop() {
	defer close(s.writerEnd)
	for buf := range s.queue {
		samples := buf.Samples()
		if len(samples) == 0 {
			continue
		}
		if err := binary.Write(s.file, binary.LittleEndian, samples); err != nil {
			slog.Error("Sink write failed", "path", s.path, "error", err)
			continue
		}
		s.dataBytes += uint32(len(samples) * 2)
	}
}

// Path returns the file path this sink writes to.
func (s *FileSink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// DroppedBuffers counts appends discarded because the write queue was full.
func (s *FileSink) DroppedBuffers() uint64 { return s.dropped.Load() }
