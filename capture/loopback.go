package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/dstanton/minute/audio"
)

// LoopbackSource captures the system render mix (what the machine is playing)
// through miniaudio's loopback device type. System audio is the mandatory
// half of a meeting recording: if this source cannot start, the recording
// cannot proceed.
type LoopbackSource struct {
	format audio.Format

	malgoCtx  *malgo.AllocatedContext
	device    *malgo.Device
	out       chan audio.SampleBuffer
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

func NewLoopbackSource(format audio.Format) *LoopbackSource {
	return &LoopbackSource{format: format}
}

func (s *LoopbackSource) Name() string { return "system" }

func (s *LoopbackSource) Start(ctx context.Context) (<-chan audio.SampleBuffer, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loopback context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.format.Channels)
	deviceConfig.SampleRate = uint32(s.format.SampleRate)

	s.out = make(chan audio.SampleBuffer, deliveryQueueSize)

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSample []byte, frameCount uint32) {
			if s.closed.Load() {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}

			samples := decodeS16LE(pInputSample)
			buf := audio.NewSampleBuffer(samples, s.format, time.Now())

			select {
			case s.out <- buf:
			default:
				s.dropped.Add(1)
			}
		},
		Stop: func() {
			// Fires on Uninit and when the backend tears the device down on
			// its own (render device removed, session revoked). Closing the
			// delivery channel is how downstream routing learns the
			// mandatory stream is gone.
			s.closeOut()
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		return nil, fmt.Errorf("failed to open loopback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		return nil, fmt.Errorf("failed to start loopback device: %w", err)
	}

	s.malgoCtx = malgoCtx
	s.device = device
	slog.Debug("System audio capture started", "format", s.format.String())
	return s.out, nil
}

func (s *LoopbackSource) Stop() error {
	s.stopOnce.Do(func() {
		if s.device != nil {
			s.device.Uninit()
			s.device = nil
		}
		if s.malgoCtx != nil {
			if err := s.malgoCtx.Uninit(); err != nil {
				s.stopErr = fmt.Errorf("failed to release loopback context: %w", err)
			}
			s.malgoCtx = nil
		}
		s.closeOut()
		if n := s.dropped.Load(); n > 0 {
			slog.Warn("System audio capture dropped buffers", "count", n)
		}
	})
	return s.stopErr
}

func (s *LoopbackSource) DroppedBuffers() uint64 { return s.dropped.Load() }

// closeOut closes the delivery channel exactly once, whether the device was
// stopped deliberately or died underneath us.
func (s *LoopbackSource) closeOut() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.out != nil {
			close(s.out)
		}
	})
}

// decodeS16LE converts the raw little-endian callback bytes into a fresh
// sample slice.
func decodeS16LE(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}
	return samples
}
