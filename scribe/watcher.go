package scribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// watchRecordings enqueues every finished artifact that appears in the
// recordings directory. In-progress capture files carry a ".tmp" suffix and
// are skipped; they only become visible when the mixer writes the final WAV.
func (s *Scribe) watchRecordings(ctx context.Context) {
	if err := os.MkdirAll(s.config.RecordingsDir, 0755); err != nil {
		slog.Error("Failed to create recordings directory",
			"error", err,
			"path", s.config.RecordingsDir)
		return
	}

	if err := s.watcher.Add(s.config.RecordingsDir); err != nil {
		slog.Error("Failed to start watching recordings directory",
			"error", err,
			"path", s.config.RecordingsDir)
		return
	}

	slog.Info("Watching recordings directory", "path", s.config.RecordingsDir)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if err := s.handleFSEvent(ev); err != nil {
				slog.Error("Failed to handle file system event",
					"error", err,
					"event", ev)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (s *Scribe) handleFSEvent(ev fsnotify.Event) error {
	name := filepath.Base(ev.Name)

	// Only care about finished WAV artifacts arriving.
	if ev.Op&fsnotify.Create == 0 {
		return nil
	}
	if strings.HasSuffix(name, ".tmp") || filepath.Ext(name) != ".wav" {
		return nil
	}
	if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
		return nil
	}

	base := strings.TrimSuffix(name, ".wav")

	// Skip artifacts that already have a transcript (e.g. after a restart
	// the create event can replay for files processed in a previous run).
	if _, err := os.Stat(s.store.TranscriptPath(base)); err == nil {
		slog.Debug("Recording already transcribed, skipping", "base", base)
		return nil
	}

	return s.enqueue(ev.Name, base)
}

func (s *Scribe) enqueue(path, base string) error {
	job := Job{
		ID:     uuid.New(),
		Path:   path,
		Base:   base,
		Queued: time.Now(),
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.queueClosed {
		return fmt.Errorf("service is shutting down")
	}

	select {
	case s.queue <- job:
		slog.Info("Queued recording for processing", "base", base, "jobID", job.ID)
		s.broadcast(event{Type: "queued", Base: base, Timestamp: job.Queued})
	default:
		return fmt.Errorf("job queue is full")
	}

	return nil
}
