package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/dstanton/minute/audio"
)

// A healthy input device invokes the capture callback continuously, silence
// included, so a callback gap this long means the device went away. PortAudio's
// callback API carries no stream-finished notification, so callback liveness
// is the only termination signal available.
const callbackSilenceTimeout = 3 * time.Second

// MicrophoneSource captures from an input device via PortAudio. DeviceID 0
// means the system default input; any other value indexes the device list.
type MicrophoneSource struct {
	format   audio.Format
	deviceID int

	stream    *portaudio.Stream
	out       chan audio.SampleBuffer
	dropped   atomic.Uint64
	lastData  atomic.Int64 // unix nanos of the most recent callback
	closed    atomic.Bool
	closeOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

func NewMicrophoneSource(format audio.Format, deviceID int) *MicrophoneSource {
	return &MicrophoneSource{format: format, deviceID: deviceID}
}

func (s *MicrophoneSource) Name() string { return "microphone" }

func (s *MicrophoneSource) Start(ctx context.Context) (<-chan audio.SampleBuffer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	inputParams, err := s.inputParameters()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	s.out = make(chan audio.SampleBuffer, deliveryQueueSize)

	stream, err := portaudio.OpenStream(inputParams, func(in []int16) {
		s.lastData.Store(time.Now().UnixNano())
		if s.closed.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		// The backend reuses the callback slice; copy before handing off.
		samples := make([]int16, len(in))
		copy(samples, in)
		buf := audio.NewSampleBuffer(samples, s.format, time.Now())

		select {
		case s.out <- buf:
		default:
			// Never block the capture callback. Dropping here loses audio
			// but keeps the device healthy.
			s.dropped.Add(1)
		}
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open microphone stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start microphone stream: %w", err)
	}

	s.stream = stream
	s.lastData.Store(time.Now().UnixNano())
	go s.watchdog(ctx)

	slog.Debug("Microphone capture started", "format", s.format.String())
	return s.out, nil
}

// watchdog closes the delivery channel when the device stops invoking the
// capture callback, so downstream routing observes device loss instead of an
// eternally silent channel.
func (s *MicrophoneSource) watchdog(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.closed.Load() {
				return
			}
			idle := time.Since(time.Unix(0, s.lastData.Load()))
			if idle > callbackSilenceTimeout {
				slog.Warn("Microphone stopped delivering audio, closing stream", "idle", idle)
				s.closeOut()
				return
			}
		}
	}
}

// closeOut closes the delivery channel exactly once, from either the
// watchdog or Stop. The closed flag keeps a straggling callback from sending
// into the closed channel.
func (s *MicrophoneSource) closeOut() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.out != nil {
			close(s.out)
		}
	})
}

func (s *MicrophoneSource) inputParameters() (portaudio.StreamParameters, error) {
	var device *portaudio.DeviceInfo

	if s.deviceID > 0 {
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get audio devices: %w", err)
		}
		if s.deviceID >= len(devices) {
			return portaudio.StreamParameters{}, fmt.Errorf("invalid device ID %d", s.deviceID)
		}
		device = devices[s.deviceID]
		if device.MaxInputChannels == 0 {
			return portaudio.StreamParameters{}, fmt.Errorf("device %d (%s) is not an input device", s.deviceID, device.Name)
		}
	} else {
		defaultDevice, err := portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get default input device: %w", err)
		}
		device = defaultDevice
	}

	slog.Info("Using microphone device",
		"deviceName", device.Name,
		"sampleRate", s.format.SampleRate,
		"inputChannels", s.format.Channels)

	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: s.format.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.format.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, nil
}

func (s *MicrophoneSource) Stop() error {
	s.stopOnce.Do(func() {
		if s.out == nil {
			// Start never succeeded; nothing to release.
			return
		}
		if s.stream != nil {
			if err := s.stream.Stop(); err != nil {
				s.stopErr = fmt.Errorf("failed to stop microphone stream: %w", err)
			}
			s.stream.Close()
			s.stream = nil
		}
		portaudio.Terminate()
		s.closeOut()
		if n := s.dropped.Load(); n > 0 {
			slog.Warn("Microphone capture dropped buffers", "count", n)
		}
	})
	return s.stopErr
}

func (s *MicrophoneSource) DroppedBuffers() uint64 { return s.dropped.Load() }
