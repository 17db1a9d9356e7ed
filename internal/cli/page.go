package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Print the current page structure",
	Long: `Print the shared session's current page: URL, title, and size-capped
HTML and visible-text sections. Acquires the session first, launching a
browser if none exists.`,
	RunE: runPage,
}

func init() {
	rootCmd.AddCommand(pageCmd)
}

func runPage(cmd *cobra.Command, args []string) error {
	b, log, err := newBroker()
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	structure, err := b.PageStructure(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), structure)
	return nil
}
