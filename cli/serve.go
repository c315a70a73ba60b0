package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dstanton/minute/scribe"
)

func newServeCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription service",
		Long: "Watch the recordings directory and transcribe (and optionally\n" +
			"summarize) every finished recording, serving results over a local\n" +
			"HTTP/websocket API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			if cfg.WhisperPath == "" || cfg.WhisperModel == "" {
				return fmt.Errorf("whisper_path and whisper_model must be configured to run the transcription service")
			}

			service, err := scribe.New(scribe.Config{
				RecordingsDir: cfg.RecordingsDir,
				HTTPAddr:      cfg.HTTPAddr,
				Workers:       cfg.Workers,
				Transcriber: &scribe.WhisperTranscriber{
					BinaryPath: cfg.WhisperPath,
					ModelPath:  cfg.WhisperModel,
				},
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				slog.Debug("Received shutdown signal")
				cancel()
			}()

			slog.Info("Transcription service starting", "addr", cfg.HTTPAddr)
			go func() {
				if err := service.Start(ctx); err != nil {
					slog.Error("Transcription service failed", "error", err)
				}
			}()

			<-ctx.Done()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			return service.Stop(stopCtx)
		},
	}
}
