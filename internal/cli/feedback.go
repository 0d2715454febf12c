package cli

import (
	"context"
	"fmt"
	"strings"

	"engagemeter/internal/ai"
	"engagemeter/internal/common"
	"engagemeter/internal/types"

	"github.com/spf13/cobra"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback [frames-file]",
	Short: "Get AI coaching feedback on a recorded interview answer",
	Long: `Summarize a recorded capture and ask the AI coach for feedback on the
candidate's answer, taking the engagement summary into account.

The answer can be given inline with --answer or read from a file with
--answer-file. Requires an AI API key.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := outputFormatPreRun(&feedbackConfig)(cmd, args); err != nil {
			return err
		}
		if strings.TrimSpace(feedbackQuestion) == "" {
			return fmt.Errorf("--question is required")
		}
		if feedbackAnswer == "" && feedbackAnswerFile == "" {
			return fmt.Errorf("one of --answer or --answer-file is required")
		}
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		return cfg.ValidateAI()
	},
	RunE: runFeedback,
}

var (
	feedbackConfig     common.CommandConfig
	feedbackQuestion   string
	feedbackAnswer     string
	feedbackAnswerFile string
)

func init() {
	addOutputFlags(feedbackCmd, &feedbackConfig)
	feedbackCmd.Flags().StringVarP(&feedbackQuestion, "question", "q", "", "Interview question that was asked")
	feedbackCmd.Flags().StringVarP(&feedbackAnswer, "answer", "a", "", "Candidate's answer (transcript)")
	feedbackCmd.Flags().StringVar(&feedbackAnswerFile, "answer-file", "", "File containing the answer transcript")
	feedbackCmd.MarkFlagsMutuallyExclusive("answer", "answer-file")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	answer := feedbackAnswer
	if feedbackAnswerFile != "" {
		answer, err = common.NewFileProcessor(cfg.App.MaxFileSize, logger).ReadFile(feedbackAnswerFile)
		if err != nil {
			return err
		}
	}

	aiService, err := ai.NewService(cmd.Context(), cfg.GetFeedbackConfig(), cfg.Observability.HealthCheck.AIModelCheckTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() {
		if err := aiService.Close(); err != nil {
			logger.Warn("Failed to close AI service", "error", err)
		}
	}()

	om, shutdown := newCommandObservability(cfg, logger)
	defer shutdown()

	feedbackOperation := func(ctx context.Context, frames []types.FrameInput, step func()) (types.FeedbackReport, *ai.TokenUsage, error) {
		tracker, err := replayFrames(ctx, frames, cfg.Engagement.HistorySize, step, om)
		if err != nil {
			return types.FeedbackReport{}, nil, err
		}
		summary := tracker.Summary(cfg.Engagement.TopEmotions)

		logger.Info("Requesting coaching feedback",
			"question_chars", len(feedbackQuestion),
			"answer_chars", len(answer),
			"samples", summary.Samples)

		out, usage, err := aiService.Feedback(ctx, types.FeedbackInput{
			Question: feedbackQuestion,
			Answer:   answer,
			Summary:  summary,
		})
		if err != nil {
			return types.FeedbackReport{}, nil, err
		}
		return types.FeedbackReport{Feedback: out, Summary: summary}, usage, nil
	}

	if err := common.RunFrameCommand(cmd.Context(), logger, feedbackConfig, args[0], feedbackOperation); err != nil {
		return fmt.Errorf("failed to generate feedback: %w", err)
	}
	logger.Info("Coaching feedback completed successfully")
	return nil
}
