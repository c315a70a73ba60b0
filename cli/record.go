package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dstanton/minute/audio"
	"github.com/dstanton/minute/capture"
	"github.com/dstanton/minute/pipeline"
)

func newRecordCmd(deps *Dependencies) *cobra.Command {
	var title string
	var noPreBuffer bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a meeting",
		Long: "Start capturing system audio and the microphone. By default the last\n" +
			"30 seconds are held in memory until you confirm; press Enter to keep\n" +
			"them and start recording, or Ctrl+C to discard. While recording,\n" +
			"press Enter again (or Ctrl+C) to stop and produce the mixed artifact.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(deps, title, noPreBuffer)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Meeting title (used in the artifact name)")
	cmd.Flags().BoolVar(&noPreBuffer, "no-prebuffer", false, "Start recording immediately, skipping the pre-buffer")

	return cmd
}

func runRecord(deps *Dependencies, title string, noPreBuffer bool) error {
	cfg := deps.Config

	recorder := pipeline.NewRecorder(pipeline.Config{
		Format: audio.Format{
			SampleRate:    cfg.SampleRate,
			Channels:      cfg.Channels,
			BitsPerSample: 16,
		},
		RecordingsDir:    cfg.RecordingsDir,
		PreBufferCeiling: cfg.PreBufferCeiling(),
	}, captureSources(cfg.InputDevice))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	lines := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	if noPreBuffer {
		if err := recorder.StartRecording(ctx, title); err != nil {
			return err
		}
	} else {
		if err := recorder.StartPreBuffering(ctx, title); err != nil {
			return err
		}
		if recorder.Degraded() {
			fmt.Println("Warning: microphone unavailable, capturing system audio only.")
		}
		fmt.Println("Pre-buffering. Press Enter to start recording, Ctrl+C to discard.")

		select {
		case <-lines:
			if err := recorder.Confirm(ctx); err != nil {
				return err
			}
		case <-sigChan:
			fmt.Println("Discarding pre-buffered audio.")
			return recorder.Cancel(ctx)
		}
	}

	if recorder.Degraded() {
		fmt.Println("Warning: microphone unavailable, capturing system audio only.")
	}
	fmt.Println("Recording. Press Enter or Ctrl+C to stop.")

	select {
	case <-lines:
	case <-sigChan:
	}

	artifact, err := recorder.StopRecording(ctx)
	if err != nil {
		return fmt.Errorf("recording could not be finalized: %w", err)
	}

	fmt.Printf("Saved %s\n", artifact)
	return nil
}

// captureSources builds the real source pair: system loopback is mandatory,
// the microphone may degrade.
func captureSources(deviceID int) pipeline.SourceFactory {
	return func(format audio.Format) (capture.Source, capture.Source) {
		return capture.NewLoopbackSource(format), capture.NewMicrophoneSource(format, deviceID)
	}
}
