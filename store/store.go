// Package store is the persistence surface over the recordings directory:
// listing finished artifacts, deleting and renaming them together with their
// transcript/summary sidecar files, and the shared naming convention that
// keys an artifact to its sidecars by base filename.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dstanton/minute/audio"
)

const (
	timestampLayout = "20060102-150405"

	// Sidecars are opaque collaborator files keyed by the artifact base name.
	transcriptSuffix = ".transcript.txt"
	summarySuffix    = ".summary.md"
)

// Recording is the listing metadata for one finished artifact.
type Recording struct {
	Name      string // base name without extension
	Path      string
	CreatedAt time.Time
	Duration  time.Duration
	Size      int64
}

type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// ArtifactBase derives the artifact base name from the recording start time
// and the optional meeting title.
func ArtifactBase(t time.Time, title string) string {
	base := t.Format(timestampLayout)
	if sanitized := SanitizeTitle(title); sanitized != "" {
		base += "-" + sanitized
	}
	return base
}

// ArtifactPath is the final WAV path for a recording started at t.
func ArtifactPath(dir string, t time.Time, title string) string {
	return filepath.Join(dir, ArtifactBase(t, title)+".wav")
}

// SanitizeTitle makes a meeting title safe for use in a filename: path
// separators and filesystem-hostile runes become dashes, whitespace collapses
// to single dashes, and leading/trailing dashes are trimmed.
func SanitizeTitle(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == '-' || r == '_':
			if !lastDash {
				b.WriteRune(r)
				lastDash = true
			}
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-_")
}

// Recordings lists finished artifacts newest-first. In-progress temporary
// files (".tmp" suffix) are never visible here.
func (s *Store) Recordings() ([]Recording, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	var recordings []Recording
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".tmp") || filepath.Ext(name) != ".wav" {
			continue
		}

		path := filepath.Join(s.dir, name)
		info, err := entry.Info()
		if err != nil {
			continue
		}

		rec := Recording{
			Name:      strings.TrimSuffix(name, ".wav"),
			Path:      path,
			CreatedAt: info.ModTime(),
			Size:      info.Size(),
		}
		if format, frames, err := audio.WavFileInfo(path); err == nil {
			rec.Duration = format.FramesDuration(frames)
		}
		recordings = append(recordings, rec)
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].CreatedAt.After(recordings[j].CreatedAt)
	})
	return recordings, nil
}

// Delete removes the artifact and cascades to its sidecar files. Missing
// sidecars are fine; sidecar removal failures are logged, never surfaced.
func (s *Store) Delete(name string) error {
	wavPath := filepath.Join(s.dir, name+".wav")
	if err := os.Remove(wavPath); err != nil {
		return fmt.Errorf("failed to delete recording %s: %w", name, err)
	}

	for _, sidecar := range s.sidecarPaths(name) {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to delete sidecar file", "path", sidecar, "error", err)
		}
	}
	return nil
}

// Rename changes an artifact's base name and cascades to existing sidecars.
func (s *Store) Rename(oldName, newName string) error {
	newName = SanitizeTitle(newName)
	if newName == "" {
		return fmt.Errorf("new recording name is empty after sanitizing")
	}

	oldPath := filepath.Join(s.dir, oldName+".wav")
	newPath := filepath.Join(s.dir, newName+".wav")
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("recording %s already exists", newName)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename recording: %w", err)
	}

	oldSidecars := s.sidecarPaths(oldName)
	newSidecars := s.sidecarPaths(newName)
	for i := range oldSidecars {
		if _, err := os.Stat(oldSidecars[i]); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(oldSidecars[i], newSidecars[i]); err != nil {
			slog.Warn("Failed to rename sidecar file", "path", oldSidecars[i], "error", err)
		}
	}
	return nil
}

// TranscriptPath returns the transcript sidecar path for an artifact.
func (s *Store) TranscriptPath(name string) string {
	return filepath.Join(s.dir, name+transcriptSuffix)
}

// SummaryPath returns the summary sidecar path for an artifact.
func (s *Store) SummaryPath(name string) string {
	return filepath.Join(s.dir, name+summarySuffix)
}

func (s *Store) sidecarPaths(name string) []string {
	return []string{s.TranscriptPath(name), s.SummaryPath(name)}
}
