package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the operation history",
	Long:  `Show the retained operation history for the shared session, oldest first.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	b, log, err := newBroker()
	if err != nil {
		return err
	}
	defer log.Close()

	records, err := b.History()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No operations recorded")
		return nil
	}

	for _, rec := range records {
		fmt.Fprintf(out, "%3d. [%s] %s\n", rec.Step, rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Description)
	}
	return nil
}
