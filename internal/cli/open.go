package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <url>",
	Short: "Navigate the shared session to a URL",
	Long: `Navigate the shared session's page to a URL, launching or reconnecting
to the browser as needed. The navigation is recorded in the operation history.`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	url := args[0]

	b, log, err := newBroker()
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	handle, err := b.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := handle.Navigate(url, 0); err != nil {
		return err
	}
	b.Record(fmt.Sprintf("navigated to %s", url))

	title, err := handle.Title()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Opened %s (%s)\n", url, title)
	return nil
}
