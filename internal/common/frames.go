package common

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"engagemeter/internal/errors"
	"engagemeter/internal/types"
)

// ParseFrames decodes recorded frames from a JSON array or from newline-delimited JSON objects
func ParseFrames(content string) ([]types.FrameInput, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFrame, "frame file is empty", nil)
	}

	if strings.HasPrefix(trimmed, "[") {
		var frames []types.FrameInput
		if err := json.Unmarshal([]byte(trimmed), &frames); err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidFrame, "invalid frame array", err)
		}
		if len(frames) == 0 {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidFrame, "frame array is empty", nil)
		}
		return frames, nil
	}

	var frames []types.FrameInput
	dec := json.NewDecoder(strings.NewReader(trimmed))
	for {
		var frame types.FrameInput
		err := dec.Decode(&frame)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidFrame,
				fmt.Sprintf("invalid frame at position %d", len(frames)+1), err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
