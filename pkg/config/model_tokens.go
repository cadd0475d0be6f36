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
	"sort"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"
)

// GlobalDefaultsKey is the entry name that holds global defaults for all
// models in a per-model token configuration.
const GlobalDefaultsKey = "default"

// ModelTokenConfig represents the token cost configuration for a single
// model.
type ModelTokenConfig struct {
	// ModelID is the model identifier (only used in override entries).
	ModelID string `yaml:"model_id,omitempty" json:"model_id,omitempty" mapstructure:"model_id"`

	// AvgTokensPerBatch is the estimated average token cost of one batch
	// of this model.
	AvgTokensPerBatch int64 `yaml:"avgTokensPerBatch,omitempty" json:"avgTokensPerBatch,omitempty" mapstructure:"avgTokensPerBatch"`
}

// ModelTokenConfigData holds per-model token configuration keyed by model
// ID, plus the "default" entry.
type ModelTokenConfigData map[string]ModelTokenConfig

// Validate checks for invalid configuration values.
func (c *ModelTokenConfig) Validate() error {
	if c.AvgTokensPerBatch < 0 {
		return fmt.Errorf("avgTokensPerBatch must be >= 0, got %d", c.AvgTokensPerBatch)
	}
	return nil
}

// ParseModelTokenConfig parses per-model token configuration from raw data
// such as a ConfigMap. The format:
//   - "default": global defaults for all models
//   - "<override-name>": per-model configuration with model_id field
//
// Invalid entries are logged and skipped. When two entries name the same
// model_id, the first key in sorted order wins.
func ParseModelTokenConfig(data map[string]string, logger logr.Logger) ModelTokenConfigData {
	out := make(ModelTokenConfigData)
	if data == nil {
		return out
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	modelIDToKey := make(map[string]string)
	for _, key := range keys {
		var config ModelTokenConfig
		if err := yaml.Unmarshal([]byte(data[key]), &config); err != nil {
			logger.Info("Failed to parse model token config entry, skipping",
				"key", key,
				"error", err)
			continue
		}
		if err := config.Validate(); err != nil {
			logger.Info("Invalid model token config entry, skipping",
				"key", key,
				"error", err)
			continue
		}

		if key == GlobalDefaultsKey {
			out[GlobalDefaultsKey] = config
			continue
		}

		if config.ModelID == "" {
			logger.Info("Skipping model token config without model_id field",
				"key", key)
			continue
		}
		if winner, exists := modelIDToKey[config.ModelID]; exists {
			logger.Info("Duplicate model_id in model token config - first key wins",
				"model_id", config.ModelID,
				"winningKey", winner,
				"duplicateKey", key)
			continue
		}
		modelIDToKey[config.ModelID] = key
		out[config.ModelID] = config
	}

	return out
}

// AvgTokensFor returns the average token cost for a specific model,
// falling back to the "default" entry. Returns 0 when neither is set.
func (data ModelTokenConfigData) AvgTokensFor(modelID string) int64 {
	if config, ok := data[modelID]; ok && config.AvgTokensPerBatch > 0 {
		return config.AvgTokensPerBatch
	}
	return data[GlobalDefaultsKey].AvgTokensPerBatch
}
