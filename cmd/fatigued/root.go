package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-fatigue/fatigue/config"
	"github.com/RyanBlaney/sonido-fatigue/logging"
)

// cliOptions holds the persistent flags shared by every command
type cliOptions struct {
	configPath string
	logLevel   string
	modelPath  string
	scalerPath string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "fatigued",
		Short: "Vocal fatigue classifier",
		Long: `fatigued labels 4-second windows of recorded speech as Non-Fatigue,
Fatigue or Ambiguous using MFCC, pitch, energy, jitter and shimmer features
and a BiLSTM attention classifier.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $"+config.EnvConfigPath+" or built-in defaults)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.modelPath, "model", "", "override artifacts.model_path")
	root.PersistentFlags().StringVar(&opts.scalerPath, "scaler", "", "override artifacts.scaler_path")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newPredictCmd(opts))
	root.AddCommand(newInspectCmd(opts))
	return root
}

// load reads the configuration, applies flag overrides and installs the
// global logger.
func (o *cliOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.modelPath != "" {
		cfg.Artifacts.ModelPath = o.modelPath
	}
	if o.scalerPath != "" {
		cfg.Artifacts.ScalerPath = o.scalerPath
	}

	logger, err := logging.NewDefaultLoggerWithOptions(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("invalid log settings: %w", err)
	}
	logging.SetGlobalLogger(logger)
	return cfg, nil
}
