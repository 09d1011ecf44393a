package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
)

// ConfigListEnv names the variable holding a model list, either inline JSON
// or a path to a JSON file.
const ConfigListEnv = "OAI_CONFIG_LIST"

// ModelEntry is one element of an OAI_CONFIG_LIST document.
type ModelEntry struct {
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url,omitempty"`
	APIType    string `json:"api_type,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
}

// ParseConfigList decodes value as inline JSON when it looks like a JSON
// array and as a file path otherwise.
func ParseConfigList(value string) ([]ModelEntry, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	raw := []byte(value)
	if !strings.HasPrefix(value, "[") {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("config: read %s from %q: %w", ConfigListEnv, value, err)
		}
		raw = data
	}

	var entries []ModelEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", ConfigListEnv, err)
	}
	return entries, nil
}

// FilterAllowed keeps entries whose model is in allowed. An empty allow-list
// keeps nothing.
func FilterAllowed(entries []ModelEntry, allowed []string) []ModelEntry {
	set := make(map[string]struct{}, len(allowed))
	for _, m := range allowed {
		set[m] = struct{}{}
	}
	var out []ModelEntry
	for _, e := range entries {
		if _, ok := set[e.Model]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ResolveModel returns the model-access configuration for a new session. When
// OAI_CONFIG_LIST is set, the first allow-listed entry replaces the model,
// key and base URL of cfg.Model. The result is validated.
func ResolveModel(cfg *Config) (ModelConfig, error) {
	model := cfg.Model

	entries, err := ParseConfigList(os.Getenv(ConfigListEnv))
	if err != nil {
		return ModelConfig{}, err
	}
	if len(entries) > 0 {
		filtered := FilterAllowed(entries, cfg.AllowedModels)
		if len(filtered) == 0 {
			return ModelConfig{}, fmt.Errorf("%w: no %s entry in %v", errorskg.ErrModelNotAllowed, ConfigListEnv, cfg.AllowedModels)
		}
		entry := filtered[0]
		model.Model = entry.Model
		model.APIKey = entry.APIKey
		if entry.BaseURL != "" {
			model.BaseURL = entry.BaseURL
		}
	}

	if err := CheckAllowed(model.Model, cfg.AllowedModels); err != nil {
		return ModelConfig{}, err
	}
	if err := ValidateModelConfig(model, cfg.AllowedModels); err != nil {
		return ModelConfig{}, err
	}
	return model, nil
}
