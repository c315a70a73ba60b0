package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// ListInputDevices enumerates the available audio input devices so the user
// can pick a microphone by ID.
func ListInputDevices() ([]portaudio.DeviceInfo, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	inputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, *device)
		}
	}

	return inputDevices, nil
}
