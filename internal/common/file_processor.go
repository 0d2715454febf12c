package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"engagemeter/internal/errors"
	"engagemeter/internal/types"
	"engagemeter/internal/utils"
)

// FileProcessor handles common file operations
type FileProcessor struct {
	maxFileSize int64
	logger      *errors.Logger
}

// NewFileProcessor creates a file processor; maxFileSize 0 disables the size check
func NewFileProcessor(maxFileSize int64, logger *errors.Logger) *FileProcessor {
	return &FileProcessor{maxFileSize: maxFileSize, logger: logger}
}

// ReadFile reads content from a file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil && fp.logger != nil {
			fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}

	return string(content), nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	if err := os.WriteFile(filename, []byte(content), 0600); err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}

	return nil
}

// ReadFrames validates, reads and parses a recorded frame file
func (fp *FileProcessor) ReadFrames(filename string) ([]types.FrameInput, error) {
	if err := utils.ValidateInputFile(filename, fp.maxFileSize); err != nil {
		return nil, errors.NewValidationError("INVALID_INPUT_FILE",
			fmt.Sprintf("Invalid file %s", filename), err)
	}

	if !utils.IsFrameFile(filename) && fp.logger != nil {
		fp.logger.Warn("File may not contain JSON frames", "filename", filename)
	}

	content, err := fp.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	frames, err := ParseFrames(content)
	if err != nil {
		if appErr, ok := errors.As(err); ok {
			return nil, appErr.WithContext("file", filename)
		}
		return nil, err
	}
	return frames, nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}
