package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupReset bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Tear down the shared session",
	Long: `Tear down the shared browser session: close the connection, terminate
the browser process, kill orphans, and remove the on-disk artifacts.
Safe to run when no session exists.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupReset, "reset", false, "also clear the operation history")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	b, log, err := newBroker()
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cleanupReset {
		b.Reset(ctx)
	} else {
		b.Cleanup(ctx)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Session cleaned up")
	return nil
}
