package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/printlog-cli/internal/config"
)

var (
	cfg *config.Config

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "printlog",
	Short: "3D printer usage log automation",
	Long:  "Matches printer users against the authorized-people sheet, emails the lab admin once per unauthorized print, and checks whether a printer's current job is logged.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(configPath, logLevel)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// setup loads configuration and installs the global logger. A non-empty
// level wins over both the file and PRINTLOG_LOG_LEVEL.
func setup(path, level string) (*config.Config, error) {
	c, err := config.LoadFrom(path)
	if err != nil {
		return nil, eris.Wrap(err, "printlog: load config")
	}
	if level != "" {
		c.Log.Level = level
	}
	if err := config.InitLogger(c.Log); err != nil {
		return nil, eris.Wrap(err, "printlog: init logger")
	}
	zap.L().Debug("configuration loaded",
		zap.String("config", path),
		zap.String("lock_driver", c.Lock.Driver),
		zap.String("mail_driver", c.Mail.Driver),
	)
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
