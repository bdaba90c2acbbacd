// Package cli wires Skygent's commands into one cobra command tree: the
// composition root (A4) that owns configuration loading, logging setup,
// and store/engine construction so cmd/skygentd stays a thin main().
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"skygent.dev/skygent/internal/config"
	"skygent.dev/skygent/internal/logging"
	"skygent.dev/skygent/version"
)

const envPrefix = "SKYGENT"

var (
	cfg *config.Config
	log *logrus.Logger
)

// RootCmd is the skygentd entry point.
var RootCmd = &cobra.Command{
	Use:     "skygentd",
	Short:   "Skygent ingests, filters, and derives views over Bluesky/AT Protocol posts",
	Version: version.GetSkygentVersion(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(envPrefix)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		cfg = c
		log = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
		return nil
	},
}

func init() {
	RootCmd.AddCommand(storeCmd)
	RootCmd.AddCommand(filterCmd)
	RootCmd.AddCommand(syncCmd)
	RootCmd.AddCommand(deriveCmd)
}

// Execute runs the command tree; main() is limited to calling this and
// setting the process exit code.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
