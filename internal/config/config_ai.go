package config

// applyOperationDefaults fills unset operation fields from the global AI config
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.Model
	}
	if opCfg.Timeout == nil {
		opCfg.Timeout = &c.AI.Timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.MaxRetries == nil {
		opCfg.MaxRetries = &c.AI.MaxRetries
	}
	if opCfg.Temperature == nil {
		opCfg.Temperature = &c.AI.Temperature
	}
	if opCfg.UseSystemPrompts == nil {
		opCfg.UseSystemPrompts = &c.AI.UseSystemPrompts
	}
	if opCfg.Prompts.System == "" {
		opCfg.Prompts.System = c.AI.Prompts.System
	}
	if opCfg.Prompts.User == "" {
		opCfg.Prompts.User = c.AI.Prompts.User
	}
}

// GetFeedbackConfig returns the feedback operation config with global fallbacks applied.
// Prompts loaded from files replace the inline ones.
func (c *Config) GetFeedbackConfig() OperationAIConfig {
	config := c.AI.Feedback
	c.applyOperationDefaults(&config)

	loaded := c.loadedPrompts
	if loaded.System != "" {
		config.Prompts.System = loaded.System
	}
	if loaded.User != "" {
		config.Prompts.User = loaded.User
	}
	return config
}
