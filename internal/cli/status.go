package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Long:  `Show whether a shared browser session exists and whether its owner process is still alive.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	b, log, err := newBroker()
	if err != nil {
		return err
	}
	defer log.Close()

	st, err := b.Status()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !st.Active {
		fmt.Fprintln(out, "Status: no session")
		return nil
	}

	fmt.Fprintln(out, "Status: active")
	fmt.Fprintf(out, "Endpoint: %s\n", st.Endpoint)
	if st.SessionID != "" {
		fmt.Fprintf(out, "Session: %s\n", st.SessionID)
	}
	if st.Pid > 0 {
		owner := "dead"
		if st.OwnerLive {
			owner = "alive"
		}
		fmt.Fprintf(out, "PID: %d (%s)\n", st.Pid, owner)
	} else {
		fmt.Fprintln(out, "PID: none (adopted browser)")
	}

	return nil
}
