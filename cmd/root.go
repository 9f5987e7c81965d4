package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/config"
)

var (
	cfg *config.Config

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "crm-import",
	Short: "Bulk contact import for the CRM",
	Long: `Imports contact batches for a company: normalizes and validates phones
against the WhatsApp directory, deduplicates against existing contacts,
applies tags and reports progress.

Configuration is read from config.yaml (or --config) and CRM_* environment
variables, e.g. CRM_STORE_DATABASE_URL.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// setup loads the config every subcommand reads from cfg and installs the
// global logger.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	cfg = c

	zap.L().Debug("config loaded",
		zap.String("command", cmd.Name()),
		zap.String("store_driver", c.Store.Driver),
	)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
