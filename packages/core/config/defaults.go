package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ParallelizeTestCollections: BoolPtr(true),
		MaxParallelThreads:         0,
		ParallelAlgorithm:          "conservative",
		StopOnFail:                 BoolPtr(false),
		Explicit:                   "off",
		FailSkips:                  BoolPtr(false),
		DiagnosticMessages:         BoolPtr(false),
		InternalDiagnosticMessages: BoolPtr(false),
		LongRunningTestSeconds:     0,
		DefaultTimeout:             0,
		Order:                      "default",
		Reporters:                  []string{"console"},
		OutputDir:                  "",
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.GetParallelizeTestCollections() == defaults.GetParallelizeTestCollections() &&
		c.MaxParallelThreads == defaults.MaxParallelThreads &&
		c.ParallelAlgorithm == defaults.ParallelAlgorithm &&
		c.GetStopOnFail() == defaults.GetStopOnFail() &&
		c.Explicit == defaults.Explicit &&
		c.GetFailSkips() == defaults.GetFailSkips() &&
		c.GetDiagnosticMessages() == defaults.GetDiagnosticMessages() &&
		c.GetInternalDiagnosticMessages() == defaults.GetInternalDiagnosticMessages() &&
		c.LongRunningTestSeconds == defaults.LongRunningTestSeconds &&
		c.DefaultTimeout == defaults.DefaultTimeout &&
		c.Order == defaults.Order &&
		c.Seed == nil &&
		c.OutputDir == defaults.OutputDir &&
		c.HistoryDB == "" &&
		c.MetricsFile == ""
}
