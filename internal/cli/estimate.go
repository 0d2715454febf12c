package cli

import (
	"context"
	"fmt"

	"engagemeter/internal/ai"
	"engagemeter/internal/common"
	"engagemeter/internal/config"
	"engagemeter/internal/engagement"
	"engagemeter/internal/errors"
	"engagemeter/internal/observability"
	"engagemeter/internal/types"

	"github.com/spf13/cobra"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [frames-file]",
	Short: "Score every frame of a recorded capture",
	Long: `Estimate engagement metrics for each frame in a recorded capture file.

The file holds frame objects either as a JSON array or one object per line:
  {"expressions": {"happy": 0.8, "neutral": 0.1, ...}, "faceBox": {...}}
Frames without a detected face produce the neutral default metrics.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: outputFormatPreRun(&estimateConfig),
	RunE:    runEstimate,
}

var estimateConfig common.CommandConfig

func init() {
	addOutputFlags(estimateCmd, &estimateConfig)
}

// addOutputFlags registers --output and --format with format completion
func addOutputFlags(cmd *cobra.Command, cmdConfig *common.CommandConfig) {
	cmd.Flags().StringVarP(&cmdConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&cmdConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return common.NewOutputHandler(nil).GetSupportedFormats(), cobra.ShellCompDirectiveNoFileComp
	})
}

// outputFormatPreRun fills in config-driven command settings and validates the format
func outputFormatPreRun(cmdConfig *common.CommandConfig) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if cmdConfig.OutputFormat == "" {
			cmdConfig.OutputFormat = cfg.App.DefaultFormat
		}
		cmdConfig.OutputFormat = common.NormalizeFormat(cmdConfig.OutputFormat)
		cmdConfig.MaxFileSize = cfg.App.MaxFileSize
		cmdConfig.ProgressBar = cfg.App.ProgressBar
		return common.ValidateOutputFormat(cmdConfig.OutputFormat, cfg.App.SupportedFormats)
	}
}

// newCommandObservability builds an observability manager for a one-shot command.
// The caller must call the returned shutdown func.
func newCommandObservability(cfg *config.Config, logger *errors.Logger) (*observability.ObservabilityManager, func()) {
	om, err := observability.NewObservabilityManager(cfg.Observability, Version)
	if err != nil {
		logger.Warn("Observability disabled for this command", "error", err)
		return nil, func() {}
	}
	return om, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Observability.HealthCheck.Timeout)
		defer cancel()
		if err := om.Shutdown(ctx); err != nil {
			logger.Warn("Failed to flush telemetry", "error", err)
		}
	}
}

func runEstimate(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	om, shutdown := newCommandObservability(cfg, logger)
	defer shutdown()

	estimateOperation := func(ctx context.Context, frames []types.FrameInput, step func()) ([]types.EngagementMetrics, *ai.TokenUsage, error) {
		results := make([]types.EngagementMetrics, 0, len(frames))
		for _, frame := range frames {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			m := engagement.EstimateFrame(frame)
			om.GetMetrics().RecordFrame(ctx, m, "cli", om)
			results = append(results, m)
			step()
		}
		return results, nil, nil
	}

	if err := common.RunFrameCommand(cmd.Context(), logger, estimateConfig, args[0], estimateOperation); err != nil {
		return fmt.Errorf("failed to estimate frames: %w", err)
	}
	logger.Info("Frame estimation completed successfully")
	return nil
}
