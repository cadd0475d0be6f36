/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/llm-d/llm-d-batch-admission/pkg/sizing"
)

// Default values applied when neither file, environment, nor flags set an
// admission parameter.
const (
	DefaultMaxConcurrentBatches = 4
	DefaultTotalTokenBudget     = 100_000
	DefaultAvgTokensPerBatch    = 2_000

	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// BATCH_ADMISSION_TOTALTOKENBUDGET.
	EnvPrefix = "BATCH_ADMISSION"
)

// Config holds the admission parameters for a batch run: the concurrency
// ceiling, the shared token budget, and the average token cost estimate
// used for sizing and reservations.
type Config struct {
	// MaxConcurrentBatches is the hard ceiling on batches running at once.
	MaxConcurrentBatches int `yaml:"maxConcurrentBatches" json:"maxConcurrentBatches" mapstructure:"maxConcurrentBatches"`

	// TotalTokenBudget is the shared token budget for the whole run.
	TotalTokenBudget int64 `yaml:"totalTokenBudget" json:"totalTokenBudget" mapstructure:"totalTokenBudget"`

	// AvgTokensPerBatch is the estimated average token cost of one batch,
	// used when no per-model override applies.
	AvgTokensPerBatch int64 `yaml:"avgTokensPerBatch" json:"avgTokensPerBatch" mapstructure:"avgTokensPerBatch"`

	// Models holds per-model token cost overrides keyed by entry name,
	// with "default" as the global fallback entry.
	Models ModelTokenConfigData `yaml:"models,omitempty" json:"models,omitempty" mapstructure:"models"`
}

// AddFlags registers the admission flags on fs. Flags registered here take
// precedence over environment variables and the config file when the same
// FlagSet is passed to Load.
func AddFlags(fs *pflag.FlagSet) {
	fs.Int("max-concurrent-batches", DefaultMaxConcurrentBatches,
		"Maximum number of batches running concurrently")
	fs.Int64("total-token-budget", DefaultTotalTokenBudget,
		"Total token budget shared by all batches in a run")
	fs.Int64("avg-tokens-per-batch", DefaultAvgTokensPerBatch,
		"Estimated average token cost of one batch")
}

// Load reads admission configuration with the usual precedence: flags,
// then environment variables, then the config file, then defaults. path
// and fs may each be empty/nil to skip that source. The returned config is
// validated.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("maxConcurrentBatches", DefaultMaxConcurrentBatches)
	v.SetDefault("totalTokenBudget", DefaultTotalTokenBudget)
	v.SetDefault("avgTokensPerBatch", DefaultAvgTokensPerBatch)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	if fs != nil {
		flagKeys := map[string]string{
			"maxConcurrentBatches": "max-concurrent-batches",
			"totalTokenBudget":     "total-token-budget",
			"avgTokensPerBatch":    "avg-tokens-per-batch",
		}
		for key, flagName := range flagKeys {
			if flag := fs.Lookup(flagName); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("binding flag %q: %w", flagName, err)
				}
			}
		}
	}

	cfg := &Config{
		MaxConcurrentBatches: v.GetInt("maxConcurrentBatches"),
		TotalTokenBudget:     v.GetInt64("totalTokenBudget"),
		AvgTokensPerBatch:    v.GetInt64("avgTokensPerBatch"),
	}
	if v.IsSet("models") {
		if err := v.UnmarshalKey("models", &cfg.Models); err != nil {
			return nil, fmt.Errorf("parsing models section: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for invalid configuration values.
func (c *Config) Validate() error {
	if c.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("maxConcurrentBatches must be positive, got %d", c.MaxConcurrentBatches)
	}
	if c.TotalTokenBudget <= 0 {
		return fmt.Errorf("totalTokenBudget must be positive, got %d", c.TotalTokenBudget)
	}
	if c.AvgTokensPerBatch <= 0 {
		return fmt.Errorf("avgTokensPerBatch must be positive, got %d", c.AvgTokensPerBatch)
	}
	for key, mc := range c.Models {
		if err := mc.Validate(); err != nil {
			return fmt.Errorf("invalid model entry %q: %w", key, err)
		}
	}
	return nil
}

// AvgTokensFor returns the average token cost estimate for the given
// model, falling back to the run-level average when no override applies.
func (c *Config) AvgTokensFor(modelID string) int64 {
	if tokens := c.Models.AvgTokensFor(modelID); tokens > 0 {
		return tokens
	}
	return c.AvgTokensPerBatch
}

// SizeRun returns the concurrency degree for a run of totalJobs batches of
// the given model, combining the configured ceiling and budget with the
// model's average token cost.
func (c *Config) SizeRun(totalJobs int, modelID string) int {
	return sizing.OptimalConcurrency(totalJobs, c.MaxConcurrentBatches, c.AvgTokensFor(modelID), c.TotalTokenBudget)
}
