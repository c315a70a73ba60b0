package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstanton/minute/audio"
)

var testFormat = audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}

func writeRecording(t *testing.T, dir, base string, seconds int) {
	t.Helper()
	samples := make([]int16, seconds*testFormat.SampleRate)
	require.NoError(t, audio.WriteWavFile(filepath.Join(dir, base+".wav"), testFormat, samples))
}

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"standup", "standup"},
		{"Weekly Sync", "Weekly-Sync"},
		{"q3/planning: budget review", "q3-planning-budget-review"},
		{"  spaced   out  ", "spaced-out"},
		{"already-safe_name", "already-safe_name"},
		{"---", ""},
		{"émoji☺title", "moji-title"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeTitle(tc.in), "input %q", tc.in)
	}
}

func TestArtifactNaming(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	assert.Equal(t, "20260314-092653", ArtifactBase(at, ""))
	assert.Equal(t, "20260314-092653-board-meeting", ArtifactBase(at, "board meeting"))
	assert.Equal(t, filepath.Join("/rec", "20260314-092653.wav"), ArtifactPath("/rec", at, ""))
}

func TestRecordingsSkipsTempAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	writeRecording(t, dir, "20260314-092653-standup", 2)
	writeRecording(t, dir, "20260314-100000", 1)

	// In-progress captures and unrelated files must stay invisible.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260314-110000.system.wav.tmp"), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260314-092653-standup.transcript.txt"), []byte("text"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0755))

	recordings, err := store.Recordings()
	require.NoError(t, err)
	require.Len(t, recordings, 2)

	names := []string{recordings[0].Name, recordings[1].Name}
	assert.ElementsMatch(t, []string{"20260314-092653-standup", "20260314-100000"}, names)
	for _, rec := range recordings {
		assert.NotZero(t, rec.Duration)
		assert.NotZero(t, rec.Size)
	}
}

func TestRecordingsSortsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	writeRecording(t, dir, "older", 1)
	older := filepath.Join(dir, "older.wav")
	require.NoError(t, os.Chtimes(older, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))
	writeRecording(t, dir, "newer", 1)

	recordings, err := store.Recordings()
	require.NoError(t, err)
	require.Len(t, recordings, 2)
	assert.Equal(t, "newer", recordings[0].Name)
	assert.Equal(t, "older", recordings[1].Name)
}

func TestRecordingsMissingDirectory(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "does-not-exist"))
	recordings, err := store.Recordings()
	require.NoError(t, err)
	assert.Empty(t, recordings)
}

func TestDeleteCascadesToSidecars(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	writeRecording(t, dir, "meeting", 1)
	require.NoError(t, os.WriteFile(store.TranscriptPath("meeting"), []byte("transcript"), 0644))
	require.NoError(t, os.WriteFile(store.SummaryPath("meeting"), []byte("summary"), 0644))

	require.NoError(t, store.Delete("meeting"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteMissingRecording(t *testing.T) {
	store := New(t.TempDir())
	assert.Error(t, store.Delete("nope"))
}

func TestRenameCascadesToExistingSidecars(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	writeRecording(t, dir, "draft", 1)
	require.NoError(t, os.WriteFile(store.TranscriptPath("draft"), []byte("transcript"), 0644))

	require.NoError(t, store.Rename("draft", "final cut"))

	assert.FileExists(t, filepath.Join(dir, "final-cut.wav"))
	assert.FileExists(t, store.TranscriptPath("final-cut"))
	assert.NoFileExists(t, filepath.Join(dir, "draft.wav"))
	assert.NoFileExists(t, store.TranscriptPath("draft"))
	// No summary sidecar existed; none should appear.
	assert.NoFileExists(t, store.SummaryPath("final-cut"))
}

func TestRenameRejectsCollisionsAndEmptyNames(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	writeRecording(t, dir, "one", 1)
	writeRecording(t, dir, "two", 1)

	assert.Error(t, store.Rename("one", "two"))
	assert.Error(t, store.Rename("one", "///"))
	assert.FileExists(t, filepath.Join(dir, "one.wav"))
}
