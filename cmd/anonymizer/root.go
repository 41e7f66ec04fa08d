package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

// app carries state shared by every subcommand
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	stdout io.Writer
	stderr io.Writer

	cfg   *config.Config
	log   *logger.Logger
	rules *anonymizer.Rules
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "anonymizer",
		Short: "Replace dates, names, emails, phone numbers and addresses in text",
		Long: `anonymizer detects sensitive spans with regular expressions and replaces them:
dates become Unix timestamps, names become stable UUIDs, and emails, phone
numbers and street addresses become realistic fake values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"configuration file (JSON, YAML or TOML); flat pattern keys such as date_regex are accepted")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"logging level: DEBUG, INFO, WARNING, ERROR, CRITICAL (overrides the config file)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "",
		"log output format: console or json (overrides the config file)")

	root.AddCommand(
		newRunCmd(a),
		newBatchCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup loads configuration, builds the logger and compiles every pattern
// before any input is touched
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	return a.apply(cfg)
}

// apply installs cfg, honouring the command line overrides
func (a *app) apply(cfg *config.Config) error {
	if a.logLevel != "" {
		if !config.ValidLogLevel(a.logLevel) {
			return fmt.Errorf("invalid log level: %s", a.logLevel)
		}
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: a.stderr,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxAge:     cfg.Logging.File.MaxAge,
			MaxBackups: cfg.Logging.File.MaxBackups,
			Compress:   cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.log = log

	rules, err := anonymizer.CompileRules(cfg.PatternConfig)
	if err != nil {
		a.log.Error("Invalid detection pattern", zap.Error(err))
		return err
	}
	a.rules = rules
	return nil
}

// reportFailure logs the error that ended the command
func (a *app) reportFailure(err error) {
	if a.log == nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return
	}
	a.log.Error("An error occurred", zap.Error(err))
	_ = a.log.Sync()
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "text-anonymizer %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
