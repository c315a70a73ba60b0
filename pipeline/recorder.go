package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dstanton/minute/audio"
	"github.com/dstanton/minute/capture"
	"github.com/dstanton/minute/store"
)

// State is the recorder's lifecycle position. All external operations are
// transitions on this machine.
type State int

const (
	StateIdle State = iota
	StatePreBuffering
	StateRecording
	StateFinalizing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreBuffering:
		return "pre-buffering"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionActive rejects a start while a pre-buffering or finalizing
	// session holds the capture devices.
	ErrSessionActive = errors.New("a recording session is already active")

	// ErrNotPreBuffering rejects Cancel outside of pre-buffering.
	ErrNotPreBuffering = errors.New("no pre-buffering session to cancel")

	// ErrNotRecording rejects Stop when nothing is being recorded.
	ErrNotRecording = errors.New("no recording in progress")

	// ErrCaptureTerminated is the absorbed cause when a capture source dies
	// mid-session.
	ErrCaptureTerminated = errors.New("capture source terminated unexpectedly")
)

// SourceFactory builds the two capture sources for a fresh session. A new
// pair is constructed per session and never reused.
type SourceFactory func(format audio.Format) (system, mic capture.Source)

// Config carries everything the recorder needs explicitly; nothing is read
// from ambient global state.
type Config struct {
	Format           audio.Format
	RecordingsDir    string
	PreBufferCeiling time.Duration
	StopTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Format == (audio.Format{}) {
		c.Format = audio.DefaultFormat
	}
	if c.PreBufferCeiling <= 0 {
		c.PreBufferCeiling = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	return c
}

// Recorder is the controller for the capture pipeline: it owns at most one
// CaptureSession at a time and serializes every transition on one mutex (the
// same mutex the session's router takes per buffer), giving the whole
// pipeline a single-writer discipline.
type Recorder struct {
	cfg     Config
	sources SourceFactory
	mixer   *audio.Mixer

	mu         sync.Mutex
	state      State
	session    *CaptureSession
	systemRing *PreBufferRing
	micRing    *PreBufferRing
	systemSink *FileSink
	micSink    *FileSink
	sessionID  uuid.UUID
	title      string
	startedAt  time.Time
	stopping   bool
	lastErr    error
}

func NewRecorder(cfg Config, sources SourceFactory) *Recorder {
	cfg = cfg.withDefaults()
	return &Recorder{
		cfg:     cfg,
		sources: sources,
		mixer:   audio.NewMixer(cfg.Format),
	}
}

// State returns the current machine state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastError is the most recent error absorbed at the state-machine boundary.
// Errors never propagate past the recorder into presentation code.
func (r *Recorder) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Degraded reports whether the active session is running without the
// microphone.
func (r *Recorder) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil && r.session.Degraded()
}

// StartPreBuffering opens the capture sources and begins accumulating the
// most recent audio in memory, holding up to the configured ceiling per
// stream. Nothing touches disk until Confirm.
func (r *Recorder) StartPreBuffering(ctx context.Context, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle && r.state != StateFailed {
		return ErrSessionActive
	}

	systemRing := NewPreBufferRing(r.cfg.PreBufferCeiling)
	micRing := NewPreBufferRing(r.cfg.PreBufferCeiling)
	system, mic := r.sources(r.cfg.Format)
	session := NewCaptureSession(&r.mu, system, mic, systemRing, micRing)

	if err := session.Start(ctx, ModePreBuffer); err != nil {
		r.state = StateIdle
		r.lastErr = err
		return err
	}

	r.session = session
	r.systemRing = systemRing
	r.micRing = micRing
	r.sessionID = uuid.New()
	r.title = title
	r.startedAt = time.Now()
	r.stopping = false
	r.state = StatePreBuffering

	slog.Info("Pre-buffering started",
		"sessionID", r.sessionID,
		"ceiling", r.cfg.PreBufferCeiling,
		"title", title)

	go r.watchSession(session)
	return nil
}

// Confirm turns a pre-buffering session into a live recording: it opens two
// fresh sinks, drains the rings into them oldest-first, then routes live
// delivery into the same sinks. Called while idle it behaves as an ordinary
// StartRecording.
func (r *Recorder) Confirm(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateIdle || r.state == StateFailed {
		// Pre-buffering never started; treat as a plain start.
		return r.startRecordingLocked(ctx, "")
	}
	if r.state != StatePreBuffering {
		return ErrSessionActive
	}

	systemSink, micSink, err := r.openSinksLocked()
	if err != nil {
		r.lastErr = err
		return err
	}

	// The router is blocked on r.mu for the duration of the drain, so the
	// ring contents land in the sinks strictly before any live buffer. The
	// backlog can exceed the sink queue, so this path blocks on queue space
	// rather than dropping.
	for _, buf := range r.systemRing.DrainAll() {
		if err := systemSink.AppendBlocking(buf); err != nil {
			slog.Error("Failed to flush pre-buffered system audio", "error", err)
		}
	}
	for _, buf := range r.micRing.DrainAll() {
		if err := micSink.AppendBlocking(buf); err != nil {
			slog.Error("Failed to flush pre-buffered microphone audio", "error", err)
		}
	}

	r.session.SwitchToRecord(systemSink, micSink)
	r.systemSink = systemSink
	r.micSink = micSink
	r.systemRing = nil
	r.micRing = nil
	r.state = StateRecording

	slog.Info("Pre-buffer confirmed, recording live", "sessionID", r.sessionID)
	return nil
}

// Cancel abandons a pre-buffering session: sources are stopped first, then
// the rings are discarded. Nothing is ever written to disk.
func (r *Recorder) Cancel(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StatePreBuffering {
		r.mu.Unlock()
		return ErrNotPreBuffering
	}
	r.stopping = true
	r.state = StateFinalizing
	session := r.session
	r.mu.Unlock()

	// Stop releases the mutex requirement: the router needs r.mu to drain
	// its in-flight buffers into the rings before the channels close.
	_ = session.Stop(r.cfg.StopTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.systemRing != nil {
		r.systemRing.Discard()
	}
	if r.micRing != nil {
		r.micRing.Discard()
	}
	r.clearSessionLocked()
	r.state = StateIdle

	slog.Info("Pre-buffering cancelled")
	return nil
}

// StartRecording opens the capture sources straight into two fresh sinks,
// skipping the ring. A call while already recording is an idempotent no-op; a
// call during pre-buffering is rejected.
func (r *Recorder) StartRecording(ctx context.Context, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateRecording:
		slog.Info("Recording already in progress, ignoring start request")
		return nil
	case StatePreBuffering, StateFinalizing:
		return ErrSessionActive
	}

	return r.startRecordingLocked(ctx, title)
}

func (r *Recorder) startRecordingLocked(ctx context.Context, title string) error {
	r.title = title
	r.startedAt = time.Now()

	systemSink, micSink, err := r.openSinksLocked()
	if err != nil {
		r.state = StateIdle
		r.lastErr = err
		return err
	}

	system, mic := r.sources(r.cfg.Format)
	session := NewCaptureSession(&r.mu, system, mic, nil, nil)
	session.SwitchToRecord(systemSink, micSink)

	if err := session.Start(ctx, ModeRecord); err != nil {
		r.removeSinkFiles(systemSink, micSink)
		r.state = StateIdle
		r.lastErr = err
		return err
	}

	r.session = session
	r.systemSink = systemSink
	r.micSink = micSink
	r.sessionID = uuid.New()
	r.stopping = false
	r.state = StateRecording

	slog.Info("Recording started", "sessionID", r.sessionID, "title", title)

	go r.watchSession(session)
	return nil
}

// StopRecording stops the capture sources, finalizes both sinks, mixes the
// two temporary files into the final artifact and cleans up. The machine
// returns to idle whether or not the mix succeeds; a mix failure is surfaced
// as a recoverable error and the temporary files are preserved for manual
// recovery.
func (r *Recorder) StopRecording(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.state != StateRecording && r.state != StateFailed {
		r.mu.Unlock()
		return "", ErrNotRecording
	}
	if r.session == nil || r.stopping {
		r.mu.Unlock()
		return "", ErrNotRecording
	}
	r.stopping = true
	r.state = StateFinalizing
	session := r.session
	r.mu.Unlock()

	// Sources stop before sinks finalize: no Append is in flight once the
	// router has drained.
	_ = session.Stop(r.cfg.StopTimeout)

	return r.finalize(StateIdle)
}

// finalize finishes both sinks, mixes them and releases the session,
// transitioning to endState. Used by the normal stop path and, best-effort,
// by the failure path: partial recordings are preferable to silent data loss.
func (r *Recorder) finalize(endState State) (string, error) {
	r.mu.Lock()
	systemSink, micSink := r.systemSink, r.micSink
	startedAt, title := r.startedAt, r.title
	r.mu.Unlock()

	if systemSink == nil || micSink == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.clearSessionLocked()
		r.state = endState
		return "", ErrNotRecording
	}

	if err := systemSink.Finish(); err != nil {
		slog.Error("Failed to finalize system sink", "error", err)
	}
	if err := micSink.Finish(); err != nil {
		slog.Error("Failed to finalize microphone sink", "error", err)
	}

	artifact := store.ArtifactPath(r.cfg.RecordingsDir, startedAt, title)
	mixErr := r.mixer.Mix(systemSink.Path(), micSink.Path(), artifact)
	if mixErr == nil {
		// Temp cleanup failures are logged and forgotten; they never reach
		// the user.
		for _, path := range []string{systemSink.Path(), micSink.Path()} {
			if err := os.Remove(path); err != nil {
				slog.Warn("Failed to remove temporary capture file", "path", path, "error", err)
			}
		}
	} else {
		// Keep the temp files: they are the only copy of the audio.
		slog.Error("Mixing failed, temporary files preserved",
			"error", mixErr,
			"systemFile", systemSink.Path(),
			"micFile", micSink.Path())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearSessionLocked()
	r.state = endState
	if mixErr != nil {
		r.lastErr = mixErr
		return "", mixErr
	}

	slog.Info("Recording finished", "artifact", artifact)
	return artifact, nil
}

// watchSession monitors the session's delivery streams. Losing the
// microphone mid-session degrades the recording with a warning; losing the
// mandatory system stream, or the router exiting while the session is live,
// moves the machine to failed and salvages whatever was captured.
func (r *Recorder) watchSession(session *CaptureSession) {
	micLost := session.MicLost()
	for {
		select {
		case <-micLost:
			micLost = nil
			r.mu.Lock()
			live := !r.stopping && r.session == session
			r.mu.Unlock()
			if live {
				session.markDegraded()
				slog.Warn("Microphone stream ended, continuing with system audio only")
			}
		case <-session.SystemLost():
			r.failSession(session)
			return
		case <-session.Done():
			r.failSession(session)
			return
		}
	}
}

// failSession converts an unexpected capture termination into the failed
// state, then salvages whatever was captured. Ordinary stop and cancel paths
// land here too and are filtered out by the stopping flag.
func (r *Recorder) failSession(session *CaptureSession) {
	r.mu.Lock()
	if r.stopping || r.session != session {
		// Ordinary stop/cancel path; nothing to salvage.
		r.mu.Unlock()
		return
	}
	r.stopping = true
	wasRecording := r.systemSink != nil
	r.lastErr = ErrCaptureTerminated
	r.state = StateFailed
	r.mu.Unlock()

	slog.Error("Capture terminated unexpectedly", "wasRecording", wasRecording)

	_ = session.Stop(r.cfg.StopTimeout)

	if wasRecording {
		if artifact, err := r.finalize(StateFailed); err == nil {
			slog.Warn("Salvaged partial recording", "artifact", artifact)
		}
		return
	}

	// Pre-buffering: nothing durable exists, just drop the rings.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.systemRing != nil {
		r.systemRing.Discard()
	}
	if r.micRing != nil {
		r.micRing.Discard()
	}
	r.clearSessionLocked()
	r.state = StateFailed
}

// openSinksLocked creates the two temporary capture files next to the final
// artifact. The ".tmp" suffix keeps them invisible to the recordings listing
// and the transcription watcher.
func (r *Recorder) openSinksLocked() (*FileSink, *FileSink, error) {
	if err := os.MkdirAll(r.cfg.RecordingsDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	base := store.ArtifactBase(r.startedAt, r.title)
	systemPath := filepath.Join(r.cfg.RecordingsDir, base+".system.wav.tmp")
	micPath := filepath.Join(r.cfg.RecordingsDir, base+".mic.wav.tmp")

	systemSink := NewFileSink()
	if err := systemSink.Open(systemPath, r.cfg.Format); err != nil {
		return nil, nil, err
	}
	micSink := NewFileSink()
	if err := micSink.Open(micPath, r.cfg.Format); err != nil {
		_ = systemSink.Finish()
		os.Remove(systemPath)
		return nil, nil, err
	}
	return systemSink, micSink, nil
}

func (r *Recorder) removeSinkFiles(sinks ...*FileSink) {
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		_ = sink.Finish()
		if err := os.Remove(sink.Path()); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove sink file", "path", sink.Path(), "error", err)
		}
	}
}

func (r *Recorder) clearSessionLocked() {
	r.session = nil
	r.systemRing = nil
	r.micRing = nil
	r.systemSink = nil
	r.micSink = nil
}
