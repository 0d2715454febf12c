package cli

import (
	"context"
	"fmt"
	"time"

	"engagemeter/internal/ai"
	"engagemeter/internal/common"
	"engagemeter/internal/engagement"
	"engagemeter/internal/observability"
	"engagemeter/internal/session"
	"engagemeter/internal/types"

	"github.com/spf13/cobra"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [frames-file]",
	Short: "Summarize a recorded mock interview session",
	Long: `Replay a recorded capture through a session tracker and print the
session summary: average scores, most frequent dominant emotions and the
share of frames where the candidate was looking away.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: outputFormatPreRun(&summarizeConfig),
	RunE:    runSummarize,
}

var (
	summarizeConfig common.CommandConfig
	summarizeTop    int
)

func init() {
	addOutputFlags(summarizeCmd, &summarizeConfig)
	summarizeCmd.Flags().IntVar(&summarizeTop, "top", 0, "Number of dominant emotions to list (default from config)")
}

// replayFrames estimates every frame and records it on a fresh tracker.
// Frames without a timestamp, or with the zero time, are stamped with the replay time.
func replayFrames(ctx context.Context, frames []types.FrameInput, historySize int, step func(), om *observability.ObservabilityManager) (*session.Tracker, error) {
	tracker := session.New(historySize)
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := engagement.EstimateFrame(frame)
		om.GetMetrics().RecordFrame(ctx, m, "cli", om)
		tracker.Record(m, frame.RecordedAt(time.Now().UTC()))
		step()
	}
	return tracker, nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	topN := summarizeTop
	if topN <= 0 {
		topN = cfg.Engagement.TopEmotions
	}

	om, shutdown := newCommandObservability(cfg, logger)
	defer shutdown()

	summarizeOperation := func(ctx context.Context, frames []types.FrameInput, step func()) (types.SessionSummary, *ai.TokenUsage, error) {
		tracker, err := replayFrames(ctx, frames, cfg.Engagement.HistorySize, step, om)
		if err != nil {
			return types.SessionSummary{}, nil, err
		}
		return tracker.Summary(topN), nil, nil
	}

	if err := common.RunFrameCommand(cmd.Context(), logger, summarizeConfig, args[0], summarizeOperation); err != nil {
		return fmt.Errorf("failed to summarize session: %w", err)
	}
	logger.Info("Session summary completed successfully")
	return nil
}
