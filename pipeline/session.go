package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dstanton/minute/audio"
	"github.com/dstanton/minute/capture"
)

// RouteMode selects where inbound sample buffers go: the pre-buffer rings or
// the live file sinks.
type RouteMode int

const (
	ModePreBuffer RouteMode = iota
	ModeRecord
)

// CaptureSession owns the two capture sources for one recording session and
// routes every delivered buffer according to the mode in effect at delivery
// time. The routing decision is re-evaluated per buffer under the shared
// coordination mutex, so a Confirm that switches the mode mid-stream takes
// effect on the very next buffer.
//
// System audio is mandatory: if the loopback source fails to start, Start
// fails. A microphone failure degrades the session to system-only with a
// warning.
type CaptureSession struct {
	mu     *sync.Mutex
	system capture.Source
	mic    capture.Source

	// Guarded by mu.
	mode       RouteMode
	systemRing *PreBufferRing
	micRing    *PreBufferRing
	systemSink *FileSink
	micSink    *FileSink

	degraded   atomic.Bool
	cancel     context.CancelFunc
	systemLost chan struct{}
	micLost    chan struct{}
	routerEnd  chan struct{}
	stopOnce   sync.Once
	stopErr    error
}

// NewCaptureSession wires a session to the caller's coordination mutex. The
// rings may be nil when the session starts directly in record mode.
func NewCaptureSession(mu *sync.Mutex, system, mic capture.Source, systemRing, micRing *PreBufferRing) *CaptureSession {
	return &CaptureSession{
		mu:         mu,
		system:     system,
		mic:        mic,
		systemRing: systemRing,
		micRing:    micRing,
		systemLost: make(chan struct{}),
		micLost:    make(chan struct{}),
		routerEnd:  make(chan struct{}),
	}
}

// Start opens both capture sources and begins routing. The caller must hold
// the coordination mutex.
func (cs *CaptureSession) Start(ctx context.Context, mode RouteMode) error {
	cs.mode = mode

	ctx, cancel := context.WithCancel(ctx)
	cs.cancel = cancel

	systemCh, err := cs.system.Start(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("system audio capture unavailable: %w", err)
	}

	micCh, err := cs.mic.Start(ctx)
	if err != nil {
		// Degraded mode: the meeting is still worth recording without the
		// microphone. Surfaced as a warning, not a failure.
		slog.Warn("Microphone unavailable, recording system audio only", "error", err)
		cs.degraded.Store(true)
		micCh = nil
	}

	go cs.router(systemCh, micCh)
	return nil
}

// router is the single consumer of both delivery channels. Delivery order
// across the two sources is unordered by design; within one source buffers
// arrive in capture order. Each channel's closure is announced on the
// corresponding lost channel the moment it is observed; the router itself
// exits when both channels are closed.
func (cs *CaptureSession) router(systemCh, micCh <-chan audio.SampleBuffer) {
	defer close(cs.routerEnd)

	for systemCh != nil || micCh != nil {
		select {
		case buf, ok := <-systemCh:
			if !ok {
				systemCh = nil
				close(cs.systemLost)
				continue
			}
			cs.route(buf, true)
		case buf, ok := <-micCh:
			if !ok {
				micCh = nil
				close(cs.micLost)
				continue
			}
			cs.route(buf, false)
		}
	}
}

func (cs *CaptureSession) route(buf audio.SampleBuffer, fromSystem bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	switch cs.mode {
	case ModePreBuffer:
		ring := cs.micRing
		if fromSystem {
			ring = cs.systemRing
		}
		if ring != nil {
			ring.Push(buf)
		}
	case ModeRecord:
		sink := cs.micSink
		if fromSystem {
			sink = cs.systemSink
		}
		if sink == nil {
			return
		}
		// Append only queues; the sink's writer goroutine does the disk I/O.
		if err := sink.Append(buf); err != nil {
			slog.Debug("Buffer arrived after sink closed", "error", err)
		}
	}
}

// SwitchToRecord flips routing from the rings to the given sinks. The caller
// must hold the coordination mutex, which also blocks the router, so no
// buffer is routed while the caller drains the rings into the sinks.
func (cs *CaptureSession) SwitchToRecord(systemSink, micSink *FileSink) {
	cs.mode = ModeRecord
	cs.systemSink = systemSink
	cs.micSink = micSink
	cs.systemRing = nil
	cs.micRing = nil
}

// Degraded reports whether the session is running without the microphone.
func (cs *CaptureSession) Degraded() bool { return cs.degraded.Load() }

func (cs *CaptureSession) markDegraded() { cs.degraded.Store(true) }

// SystemLost closes when the system delivery channel closes. The system
// stream is mandatory, so outside of an ordinary stop this means the
// recording cannot continue.
func (cs *CaptureSession) SystemLost() <-chan struct{} { return cs.systemLost }

// MicLost closes when the microphone delivery channel closes. It never fires
// for a session that started without a microphone.
func (cs *CaptureSession) MicLost() <-chan struct{} { return cs.micLost }

// Done closes when the router has drained both delivery channels — either
// because Stop was called or because the sources terminated on their own.
func (cs *CaptureSession) Done() <-chan struct{} { return cs.routerEnd }

// Stop shuts down both sources and waits for the router to drain in-flight
// buffers, bounded by timeout. After Stop returns no Append or Push is in
// flight, so sinks may be finalized and rings discarded safely. The caller
// must NOT hold the coordination mutex: the router needs it to drain.
func (cs *CaptureSession) Stop(timeout time.Duration) error {
	cs.stopOnce.Do(func() {
		if cs.cancel != nil {
			cs.cancel()
		}
		if err := cs.system.Stop(); err != nil {
			slog.Error("Failed to stop system audio capture", "error", err)
			cs.stopErr = err
		}
		if err := cs.mic.Stop(); err != nil && !cs.degraded.Load() {
			slog.Warn("Failed to stop microphone capture", "error", err)
		}

		select {
		case <-cs.routerEnd:
		case <-time.After(timeout):
			// Force-release rather than hang; the writer may lose trailing
			// buffers.
			slog.Warn("Timed out waiting for capture routing to drain", "timeout", timeout)
		}
	})
	return cs.stopErr
}
