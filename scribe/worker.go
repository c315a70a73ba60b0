package scribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

func (s *Scribe) worker(ctx context.Context) {
	slog.Debug("Worker starting")
	defer func() {
		slog.Debug("Worker shutting down")
		s.workers.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case job, ok := <-s.queue:
			if !ok {
				return
			}

			if err := s.processJob(ctx, job); err != nil {
				slog.Error("Failed to process recording",
					"error", err,
					"base", job.Base,
					"jobID", job.ID)
				s.broadcast(event{
					Type:      "failed",
					Base:      job.Base,
					Timestamp: time.Now(),
					Payload:   err.Error(),
				})
			}
		}
	}
}

func (s *Scribe) processJob(ctx context.Context, job Job) error {
	slog.Info("Processing recording", "base", job.Base, "jobID", job.ID)

	// The artifact may have been deleted between the watch event and now.
	if _, err := os.Stat(job.Path); err != nil {
		slog.Info("Recording no longer exists, skipping", "base", job.Base)
		return nil
	}

	transcript, err := s.config.Transcriber.Transcribe(ctx, job.Path)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	if transcript == "" {
		slog.Info("No transcribable content found", "base", job.Base)
		return nil
	}

	if err := os.WriteFile(s.store.TranscriptPath(job.Base), []byte(transcript), 0644); err != nil {
		return fmt.Errorf("failed to write transcript sidecar: %w", err)
	}

	result := Result{
		Base:        job.Base,
		Transcript:  transcript,
		ProcessedAt: time.Now(),
	}

	if s.config.Summarizer != nil {
		summary, err := s.config.Summarizer.Summarize(ctx, transcript)
		if err != nil {
			// A transcript without a summary is still useful; keep going.
			slog.Warn("Summarization failed", "error", err, "base", job.Base)
		} else {
			result.Summary = summary
			if err := os.WriteFile(s.store.SummaryPath(job.Base), []byte(summary), 0644); err != nil {
				slog.Warn("Failed to write summary sidecar", "error", err, "base", job.Base)
			}
		}
	}

	s.results.Store(job.Base, result)

	s.broadcast(event{
		Type:      "transcribed",
		Base:      job.Base,
		Timestamp: result.ProcessedAt,
		Payload:   result,
	})

	slog.Info("Recording processed",
		"base", job.Base,
		"transcriptChars", len(transcript),
		"summarized", result.Summary != "")

	return nil
}
