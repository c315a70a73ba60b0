// Package cli defines the minute command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/dstanton/minute/config"
)

// Dependencies carries the resolved configuration into the commands.
type Dependencies struct {
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "minute",
		Short: "Record meetings, transcribe, and summarize",
		Long: "minute records meetings by capturing system audio and the microphone\n" +
			"concurrently, mixing both into a single WAV artifact. It can hold the\n" +
			"last 30 seconds in memory before you commit to recording, and a\n" +
			"background service transcribes and summarizes finished recordings.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRecordCmd(deps))
	rootCmd.AddCommand(newListCmd(deps))
	rootCmd.AddCommand(newDeleteCmd(deps))
	rootCmd.AddCommand(newRenameCmd(deps))
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newPlayCmd(deps))
	rootCmd.AddCommand(newServeCmd(deps))

	return rootCmd
}
