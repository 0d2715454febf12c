package common

import (
	"context"
	"fmt"
	"io"
	"os"

	"engagemeter/internal/ai"
	"engagemeter/internal/errors"
	"engagemeter/internal/types"

	"github.com/schollz/progressbar/v3"
)

// progressThreshold is the frame count from which a progress bar is shown
const progressThreshold = 200

// FrameOperationFunc turns recorded frames into a command result.
// step must be called once per processed frame. Token usage may be nil.
type FrameOperationFunc[Output any] func(ctx context.Context, frames []types.FrameInput, step func()) (Output, *ai.TokenUsage, error)

// RunFrameCommand reads a frame file, runs op on it and writes the formatted result
func RunFrameCommand[Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	path string,
	op FrameOperationFunc[Output],
) error {
	return runFrameCommand(ctx, logger, cmdConfig, path, op, NewOutputHandler(logger), os.Stderr)
}

func runFrameCommand[Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	path string,
	op FrameOperationFunc[Output],
	outputHandler *OutputHandler,
	progressOut io.Writer,
) error {
	frames, err := NewFileProcessor(cmdConfig.MaxFileSize, logger).ReadFrames(path)
	if err != nil {
		return err
	}

	if logger != nil {
		logger.Info("Processing recorded frames",
			"file", path,
			"frames", len(frames),
			"output_format", cmdConfig.OutputFormat)
	}

	step := func() {}
	if cmdConfig.ProgressBar && len(frames) >= progressThreshold {
		bar := progressbar.NewOptions(len(frames),
			progressbar.OptionSetWriter(progressOut),
			progressbar.OptionSetDescription("frames"),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(0),
			progressbar.OptionClearOnFinish(),
		)
		defer func() { _ = bar.Finish() }()
		step = func() { _ = bar.Add(1) }
	}

	result, tokenUsage, err := op(ctx, frames, step)
	if err != nil {
		return err
	}

	if tokenUsage != nil {
		if logger != nil {
			logger.Info("AI token usage", "input_tokens", tokenUsage.InputTokens, "output_tokens", tokenUsage.OutputTokens, "total_tokens", tokenUsage.TotalTokens)
		} else {
			fmt.Fprintf(os.Stderr, "AI token usage: input=%d, output=%d, total=%d\n", tokenUsage.InputTokens, tokenUsage.OutputTokens, tokenUsage.TotalTokens)
		}
	}

	return outputHandler.HandleOutput(result, cmdConfig)
}
