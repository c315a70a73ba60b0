package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dstanton/minute/store"
)

func newListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List finished recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			recordings, err := store.New(deps.Config.RecordingsDir).Recordings()
			if err != nil {
				return err
			}
			if len(recordings) == 0 {
				fmt.Println("No recordings yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCREATED\tDURATION\tSIZE")
			for _, rec := range recordings {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d KiB\n",
					rec.Name,
					rec.CreatedAt.Format("2006-01-02 15:04"),
					rec.Duration.Round(time.Second),
					rec.Size/1024)
			}
			return w.Flush()
		},
	}
}

func newDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a recording and its transcript/summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.New(deps.Config.RecordingsDir).Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newRenameCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename a recording and its transcript/summary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.New(deps.Config.RecordingsDir).Rename(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Renamed %s to %s\n", args[0], args[1])
			return nil
		},
	}
}
