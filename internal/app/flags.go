package app

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"scanhub/internal/config"
	"scanhub/pkg/logger"
)

// Persistent flags registered on the root command.
const (
	ConfigFlag  = "config"
	VerboseFlag = "verbose"
)

// AddPersistentFlags registers the flags every scanhub command accepts.
func AddPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String(ConfigFlag, "", "Path to scanhub.yaml")
	cmd.PersistentFlags().BoolP(VerboseFlag, "v", false, "Enable verbose logging")
}

// LoadFromFlags loads the config named by --config and builds the logger at
// the configured level, or debug with --verbose.
func LoadFromFlags(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configFile, _ := cmd.Flags().GetString(ConfigFlag)
	verbose, _ := cmd.Flags().GetBool(VerboseFlag)

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	return cfg, logger.NewLogger(level), nil
}
