package main

import (
	"fmt"
	"os"

	"github.com/op/go-logging"
	"github.com/spf13/cobra"

	"github.com/livesync/backend/internal/config"
	"github.com/livesync/backend/internal/logs"
)

var log = logging.MustGetLogger("livesyncd")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "livesyncd",
		Short:         "Live-session synchronization daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newRecordsCmd(&configPath))
	root.AddCommand(newPurgeCmd(&configPath))
	root.AddCommand(newTokenCmd())
	return root
}

// loadConfig reads the config file, falling back to the defaults when
// it does not exist, and installs the configured log level.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logs.Init(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return cfg, nil
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a random token for server.auth_token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := config.GenerateToken()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
