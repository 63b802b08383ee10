package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// ComputeConfigHash is the canonical dedup-hash digest over
// {system_prompt, configuration, tool set, model}. Tool names are sorted
// and the configuration document is marshaled with sorted object keys
// (Go's encoding/json already sorts map keys), so two blueprints that are
// semantically identical but differ only in tool-array order or
// configuration key order collapse to the same hash.
func ComputeConfigHash(systemPrompt string, configuration map[string]any, tools []string, modelName string) (string, error) {
	sortedTools := make([]string, len(tools))
	copy(sortedTools, tools)
	sort.Strings(sortedTools)

	canonical := struct {
		SystemPrompt  string         `json:"system_prompt"`
		Configuration map[string]any `json:"configuration"`
		Tools         []string       `json:"tools"`
		Model         string         `json:"model"`
	}{
		SystemPrompt:  systemPrompt,
		Configuration: configuration,
		Tools:         sortedTools,
		Model:         modelName,
	}

	b, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
