// Package cli wires the pagebroker commands. Every command builds its own
// broker from the on-disk configuration, mirroring how step processes use the
// library: nothing is shared in memory between invocations.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/pagebroker/internal/config"
	"github.com/harun/pagebroker/internal/logger"
	"github.com/harun/pagebroker/pkg/broker"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagebroker",
	Short: "Pagebroker - persistent browser session broker",
	Long: `Pagebroker keeps one long-running browser session shared across
short-lived automation processes. Sessions are coordinated through the
filesystem, so any process pointed at the same data directory can pick up
where the previous one left off.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pagebroker/pagebroker.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// newBroker loads the configuration and builds a broker plus its logger. The
// caller owns the logger and must Close it.
func newBroker() (*broker.SessionBroker, *logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return broker.New(cfg.BrokerOptions(), log.GetZerolog()), log, nil
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
