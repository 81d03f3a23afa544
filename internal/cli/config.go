package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/config"
	"github.com/synheart/synheart-seizure/internal/logging"
)

// GlobalOptions are shared flags that apply across commands.
type GlobalOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
	LogFormat  string
}

var globalOpts = GlobalOptions{
	EnvFile: ".env",
}

func bindGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&globalOpts.ConfigPath, "config", "c", "", "YAML config file")
	f.StringVar(&globalOpts.EnvFile, "env-file", globalOpts.EnvFile, "dotenv file loaded before SEIZURE_* overrides")
	f.StringVar(&globalOpts.LogLevel, "log-level", "", "debug|info|warn|error (overrides config)")
	f.StringVar(&globalOpts.LogFormat, "log-format", "", "console|json (overrides config)")
}

// loadConfig reads the dotenv file (if any), then the YAML config and
// environment, then applies the logging flags.
func loadConfig() (*config.Config, error) {
	if globalOpts.EnvFile != "" {
		// a missing .env is normal
		_ = godotenv.Load(globalOpts.EnvFile)
	}
	cfg, err := config.Load(globalOpts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if globalOpts.LogLevel != "" {
		cfg.Log.Level = globalOpts.LogLevel
	}
	if globalOpts.LogFormat != "" {
		cfg.Log.Format = globalOpts.LogFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "synheart-seizure")
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
