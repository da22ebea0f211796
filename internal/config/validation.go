package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// Validate checks the configuration against the data root and returns every
// finding. An empty slice means the config is usable.
func (c Config) Validate(dataRoot string) []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateFetcher(dataRoot)...)
	results = append(results, c.validatePolicies()...)
	return results
}

// CountErrors returns how many results are errors.
func CountErrors(results []ValidationResult) int {
	n := 0
	for _, r := range results {
		if r.Level == "error" {
			n++
		}
	}
	return n
}

func (c Config) validateFetcher(dataRoot string) []ValidationResult {
	if c.Fetcher.Path == "" {
		return []ValidationResult{{
			Level:   "warning",
			Message: "fetcher.path not set; the fetcher will be looked up on PATH",
		}}
	}
	resolved := c.Fetcher.Path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(dataRoot, resolved)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("fetcher %q not found", c.Fetcher.Path),
		}}
	}
	if info.IsDir() {
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("fetcher %q is a directory", c.Fetcher.Path),
		}}
	}
	return nil
}

func (c Config) validatePolicies() []ValidationResult {
	var results []ValidationResult
	switch c.Resolve.Policy {
	case PolicyPrompt, PolicyAll, PolicyNone:
	default:
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("resolve.policy %q must be one of prompt, all, none", c.Resolve.Policy),
		})
	}
	if c.Retry.MaxAttempts < 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("retry.max_attempts must not be negative (got %d)", c.Retry.MaxAttempts),
		})
	}
	if c.Retry.MaxAttempts == 0 {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: "retry.max_attempts is 0; failed downloads may be retried without limit",
		})
	}
	return results
}
