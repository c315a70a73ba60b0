package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstanton/minute/audio"
	"github.com/dstanton/minute/capture"
)

// fakeSource is a controllable capture source: tests emit buffers directly
// and can simulate a device dying mid-session.
type fakeSource struct {
	name      string
	failStart bool
	ch        chan audio.SampleBuffer
	closeOnce sync.Once
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Start(ctx context.Context) (<-chan audio.SampleBuffer, error) {
	if f.failStart {
		return nil, errors.New(f.name + " device unavailable")
	}
	f.ch = make(chan audio.SampleBuffer, 256)
	return f.ch, nil
}

func (f *fakeSource) Stop() error {
	if f.ch != nil {
		f.closeOnce.Do(func() { close(f.ch) })
	}
	return nil
}

func (f *fakeSource) DroppedBuffers() uint64 { return 0 }

func (f *fakeSource) emit(buf audio.SampleBuffer) { f.ch <- buf }

// die simulates the OS stream terminating on its own.
func (f *fakeSource) die() {
	f.closeOnce.Do(func() { close(f.ch) })
}

type fakeRig struct {
	system   *fakeSource
	mic      *fakeSource
	recorder *Recorder
	dir      string
	built    int
}

func newFakeRig(t *testing.T) *fakeRig {
	t.Helper()
	rig := &fakeRig{
		system: &fakeSource{name: "system"},
		mic:    &fakeSource{name: "microphone"},
		dir:    t.TempDir(),
	}
	rig.recorder = NewRecorder(Config{
		Format:           testFormat,
		RecordingsDir:    rig.dir,
		PreBufferCeiling: 30 * time.Second,
		StopTimeout:      2 * time.Second,
	}, func(format audio.Format) (capture.Source, capture.Source) {
		rig.built++
		return rig.system, rig.mic
	})
	return rig
}

func (rig *fakeRig) wavFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(rig.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".wav" && !strings.HasSuffix(e.Name(), ".tmp") {
			names = append(names, e.Name())
		}
	}
	return names
}

func (rig *fakeRig) allFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(rig.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func ringCounts(r *Recorder) (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.systemRing == nil || r.micRing == nil {
		return 0, 0
	}
	return r.systemRing.Count(), r.micRing.Count()
}

func TestCancelDuringPreBufferingLeavesNoFiles(t *testing.T) {
	rig := newFakeRig(t)
	ctx := context.Background()

	require.NoError(t, rig.recorder.StartPreBuffering(ctx, "standup"))
	require.Equal(t, StatePreBuffering, rig.recorder.State())

	for i := 0; i < 3; i++ {
		rig.system.emit(secondBuffer(int16(i)))
		rig.mic.emit(secondBuffer(int16(i)))
	}
	require.Eventually(t, func() bool {
		s, m := ringCounts(rig.recorder)
		return s == 3 && m == 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, rig.recorder.Cancel(ctx))
	assert.Equal(t, StateIdle, rig.recorder.State())
	assert.Empty(t, rig.allFiles(t), "cancel must leave no files on disk")
}

func TestConfirmKeepsPreBufferedAndLiveAudio(t *testing.T) {
	rig := newFakeRig(t)
	ctx := context.Background()

	require.NoError(t, rig.recorder.StartPreBuffering(ctx, "weekly sync"))

	for i := 0; i < 3; i++ {
		rig.system.emit(secondBuffer(int16(i)))
		rig.mic.emit(secondBuffer(int16(i)))
	}
	require.Eventually(t, func() bool {
		s, m := ringCounts(rig.recorder)
		return s == 3 && m == 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, rig.recorder.Confirm(ctx))
	require.Equal(t, StateRecording, rig.recorder.State())

	for i := 3; i < 5; i++ {
		rig.system.emit(secondBuffer(int16(i)))
		rig.mic.emit(secondBuffer(int16(i)))
	}

	artifact, err := rig.recorder.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, rig.recorder.State())

	// Ring audio (3s) plus live audio (2s) per stream.
	format, frames, err := audio.WavFileInfo(artifact)
	require.NoError(t, err)
	assert.Equal(t, testFormat, format)
	assert.Equal(t, 5*testFormat.SampleRate, frames)

	// Temporary capture files are gone; only the artifact remains.
	assert.Equal(t, []string{filepath.Base(artifact)}, rig.allFiles(t))
}

func TestStartRecordingTwiceIsOneSession(t *testing.T) {
	rig := newFakeRig(t)
	ctx := context.Background()

	require.NoError(t, rig.recorder.StartRecording(ctx, "retro"))
	require.NoError(t, rig.recorder.StartRecording(ctx, "retro"),
		"second start while recording must be a no-op")
	assert.Equal(t, 1, rig.built, "only one source pair may be constructed")

	rig.system.emit(secondBuffer(1))
	rig.mic.emit(secondBuffer(1))

	artifact, err := rig.recorder.StopRecording(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, artifact)
	assert.Len(t, rig.wavFiles(t), 1, "exactly one artifact")
}

func TestStartWhilePreBufferingIsRejected(t *testing.T) {
	rig := newFakeRig(t)
	ctx := context.Background()

	require.NoError(t, rig.recorder.StartPreBuffering(ctx, ""))
	assert.ErrorIs(t, rig.recorder.StartRecording(ctx, ""), ErrSessionActive)
	assert.ErrorIs(t, rig.recorder.StartPreBuffering(ctx, ""), ErrSessionActive)

	require.NoError(t, rig.recorder.Cancel(ctx))
}

func TestConfirmFromIdleActsAsStartRecording(t *testing.T) {
	rig := newFakeRig(t)
	ctx := context.Background()

	require.NoError(t, rig.recorder.Confirm(ctx))
	assert.Equal(t, StateRecording, rig.recorder.State())

	rig.system.emit(secondBuffer(1))
	artifact, err := rig.recorder.StopRecording(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, artifact)
}

func TestAcquisitionFailureReturnsToIdle(t *testing.T) {
	rig := newFakeRig(t)
	rig.system.failStart = true
	ctx := context.Background()

	err := rig.recorder.StartPreBuffering(ctx, "")
	require.Error(t, err)
	assert.Equal(t, StateIdle, rig.recorder.State())
	assert.Error(t, rig.recorder.LastError())
	assert.Empty(t, rig.allFiles(t))
}

func TestMicrophoneFailureDegradesToSystemOnly(t *testing.T) {
	rig := newFakeRig(t)
	rig.mic.failStart = true
	ctx := context.Background()

	require.NoError(t, rig.recorder.StartPreBuffering(ctx, "solo"))
	assert.True(t, rig.recorder.Degraded())

	rig.system.emit(secondBuffer(1))
	rig.system.emit(secondBuffer(2))
	require.Eventually(t, func() bool {
		s, _ := ringCounts(rig.recorder)
		return s == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, rig.recorder.Confirm(ctx))
	artifact, err := rig.recorder.StopRecording(ctx)
	require.NoError(t, err)

	// The missing microphone contributes silence; the artifact spans the
	// full system-audio length.
	_, frames, err := audio.WavFileInfo(artifact)
	require.NoError(t, err)
	assert.Equal(t, 2*testFormat.SampleRate, frames)
}

func TestSystemStreamDeathFailsRecording(t *testing.T) {
	rig := newFakeRig(t)
	ctx := context.Background()

	require.NoError(t, rig.recorder.StartRecording(ctx, "dropout"))
	rig.system.emit(secondBuffer(1))
	rig.mic.emit(secondBuffer(1))

	// Only the mandatory system stream dies; the microphone stays healthy.
	rig.system.die()

	require.Eventually(t, func() bool {
		return rig.recorder.State() == StateFailed && len(rig.wavFiles(t)) == 1
	}, 3*time.Second, 10*time.Millisecond,
		"system stream loss must fail the recording and salvage the partial audio")

	assert.ErrorIs(t, rig.recorder.LastError(), ErrCaptureTerminated)

	artifact := filepath.Join(rig.dir, rig.wavFiles(t)[0])
	_, frames, err := audio.WavFileInfo(artifact)
	require.NoError(t, err)
	assert.Equal(t, testFormat.SampleRate, frames)
}

func TestMicStreamDeathDegradesRecording(t *testing.T) {
	rig := newFakeRig(t)
	ctx := context.Background()

	require.NoError(t, rig.recorder.StartRecording(ctx, "half"))
	rig.system.emit(secondBuffer(1))
	rig.mic.emit(secondBuffer(1))

	// Losing the microphone is not fatal; the session keeps recording.
	rig.mic.die()

	require.Eventually(t, func() bool {
		return rig.recorder.Degraded()
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateRecording, rig.recorder.State())
	assert.NoError(t, rig.recorder.LastError())

	rig.system.emit(secondBuffer(2))

	artifact, err := rig.recorder.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, rig.recorder.State())

	_, frames, err := audio.WavFileInfo(artifact)
	require.NoError(t, err)
	assert.Equal(t, 2*testFormat.SampleRate, frames)
}

func TestMidStreamTerminationSalvagesPartialRecording(t *testing.T) {
	rig := newFakeRig(t)
	ctx := context.Background()

	require.NoError(t, rig.recorder.StartRecording(ctx, "flaky"))
	rig.system.emit(secondBuffer(1))
	rig.mic.emit(secondBuffer(1))

	// Both streams die without StopRecording being called.
	rig.system.die()
	rig.mic.die()

	require.Eventually(t, func() bool {
		return rig.recorder.State() == StateFailed && len(rig.wavFiles(t)) == 1
	}, 3*time.Second, 10*time.Millisecond, "partial recording must be salvaged")

	assert.ErrorIs(t, rig.recorder.LastError(), ErrCaptureTerminated)

	artifact := filepath.Join(rig.dir, rig.wavFiles(t)[0])
	_, frames, err := audio.WavFileInfo(artifact)
	require.NoError(t, err)
	assert.Equal(t, testFormat.SampleRate, frames)
}

func TestOperationsOutsideTheirStates(t *testing.T) {
	rig := newFakeRig(t)
	ctx := context.Background()

	_, err := rig.recorder.StopRecording(ctx)
	assert.ErrorIs(t, err, ErrNotRecording)
	assert.ErrorIs(t, rig.recorder.Cancel(ctx), ErrNotPreBuffering)
}
