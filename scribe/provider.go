package scribe

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Transcriber turns a finished WAV artifact into text. Implementations are
// vendor black boxes; the service only cares about this contract.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// Summarizer condenses a transcript. Optional: when absent, recordings get a
// transcript sidecar only.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// WhisperTranscriber shells out to a local whisper binary.
type WhisperTranscriber struct {
	BinaryPath string
	ModelPath  string
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	cmd := exec.CommandContext(ctx, w.BinaryPath,
		"--model", w.ModelPath,
		wavPath)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("whisper execution failed: %w (stderr: %s)", err, string(exitErr.Stderr))
		}
		return "", fmt.Errorf("whisper execution failed: %w", err)
	}

	return extractText(string(output)), nil
}

// extractText flattens whisper's subtitle-style output into plain prose,
// dropping blank-audio markers.
func extractText(output string) string {
	var builder strings.Builder
	for _, line := range strings.Split(output, "\n") {
		text := strings.TrimSpace(line)
		if text == "" || strings.Contains(text, "[BLANK_AUDIO]") {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(text)
	}
	return strings.TrimSpace(builder.String())
}
