package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LoadedPrompts holds prompt content read from files
type LoadedPrompts struct {
	System string
	User   string
}

// loadPromptFiles reads the feedback prompt files.
// An operation file wins over an operation inline prompt, which wins over a global file.
func (c *Config) loadPromptFiles() error {
	system, err := resolvePromptFile(c.AI.Feedback.Prompts.SystemFile, c.AI.Feedback.Prompts.System, c.AI.Prompts.SystemFile, "system")
	if err != nil {
		return err
	}
	user, err := resolvePromptFile(c.AI.Feedback.Prompts.UserFile, c.AI.Feedback.Prompts.User, c.AI.Prompts.UserFile, "user")
	if err != nil {
		return err
	}

	c.loadedPrompts = LoadedPrompts{System: system, User: user}

	if system == "" && user == "" {
		log.Println("[CONFIG] No custom prompt files loaded - using built-in defaults")
	}
	return nil
}

func resolvePromptFile(opFile, opInline, globalFile, promptType string) (string, error) {
	switch {
	case opFile != "":
		return readPromptFile(opFile, promptType)
	case opInline != "":
		return "", nil
	case globalFile != "":
		return readPromptFile(globalFile, promptType)
	}
	return "", nil
}

// readPromptFile reads a prompt, rejecting missing or empty files
func readPromptFile(filePath, promptType string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s prompt file '%s': %w", promptType, filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%s prompt file not found: %s", promptType, absPath)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s prompt file '%s': %w", promptType, absPath, err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", fmt.Errorf("%s prompt file '%s' is empty", promptType, absPath)
	}

	log.Printf("[CONFIG] Loaded %s prompt from file: %s (%d characters)", promptType, absPath, len(trimmed))
	return trimmed, nil
}
