package cli

import (
	"context"
	"fmt"

	"engagemeter/internal/config"
	"engagemeter/internal/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

// configKeyAnnotation marks a flag as an override for a config key
const configKeyAnnotation = "viper"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "engagemeter",
	Short: "Estimate interview engagement from face-expression probabilities",
	Long: `Engagemeter turns per-frame face-expression probabilities into
attention, positivity, confidence and arousal scores, together with
gaze direction, head pose and facial feature intensities.

It can score recorded frame files, summarize a recorded session, ask an
AI coach for feedback on an answer, or serve the estimator over HTTP and
WebSocket for live mock interviews.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadRuntime,
}

// Execute runs the root command with ctx as the base context
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// bindConfigFlag annotates a flag so it overrides key when set
func bindConfigFlag(flags *pflag.FlagSet, flagName, key string) {
	if err := flags.SetAnnotation(flagName, configKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

// collectFlagBindings gathers annotated flags of cmd and its parents
func collectFlagBindings(cmd *cobra.Command) []config.FlagBinding {
	var bindings []config.FlagBinding
	collect := func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKeyAnnotation]; ok && len(keys) > 0 {
			bindings = append(bindings, config.FlagBinding{Key: keys[0], Flag: f})
		}
	}
	cmd.Flags().VisitAll(collect)
	cmd.InheritedFlags().VisitAll(collect)
	return bindings
}

func loadRuntime(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigFile(configFile, collectFlagBindings(cmd)...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := errors.New(cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := config.ApplyVaultSecrets(cfg, logger); err != nil {
		return fmt.Errorf("failed to apply vault secrets: %w", err)
	}

	logger.Debug("Starting engagemeter",
		"version", Version,
		"command", cmd.Name(),
		"log_level", cfg.App.LogLevel)

	// Attach the config and logger to the context, making them available to all subcommands
	ctx := context.WithValue(cmd.Context(), configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	cmd.SetContext(ctx)
	return nil
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg, nil
	}
	return nil, fmt.Errorf("config not found in context")
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) (*errors.Logger, error) {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger, nil
	}
	return nil, fmt.Errorf("logger not found in context")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: search /etc/engagemeter, $HOME/.engagemeter, .)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	bindConfigFlag(rootCmd.PersistentFlags(), "log-level", "app.logLevel")

	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
