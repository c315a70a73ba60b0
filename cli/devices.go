package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dstanton/minute/capture"
	"github.com/dstanton/minute/playback"
	"github.com/dstanton/minute/store"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := capture.ListInputDevices()
			if err != nil {
				return err
			}

			fmt.Println("Available audio input devices:")
			for i, device := range devices {
				fmt.Printf("[%d] %s\n", i, device.Name)
				fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
				fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
				fmt.Println()
			}
			return nil
		},
	}
}

func newPlayCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "play <name>",
		Short: "Play a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(store.New(deps.Config.RecordingsDir).Dir(), args[0]+".wav")
			return playback.PlayWavFile(path)
		},
	}
}
