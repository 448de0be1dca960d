package config

import (
	"errors"
	"os"
	"strings"
)

// APIKeyEnv is consulted before llm.api_key.
const APIKeyEnv = "ANTHROPIC_API_KEY"

// ErrNoAPIKey is returned when the LLM classifier has no API key to use.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// KeySource says where ResolveAPIKey found the key.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// ResolveAPIKey finds the Anthropic key, preferring the environment over the
// config file. A config value may reference other variables as ${NAME}; it
// counts as unset when the reference expands to nothing.
func ResolveAPIKey(cfg *Config) (string, KeySource, error) {
	if key := os.Getenv(APIKeyEnv); key != "" {
		return key, KeySourceEnv, nil
	}
	if cfg != nil && cfg.LLM.APIKey != "" {
		key := os.ExpandEnv(cfg.LLM.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, KeySourceConfig, nil
		}
	}
	return "", KeySourceNone, ErrNoAPIKey
}

// MaskAPIKey hides all but the ends of key for display.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	default:
		return key[:7] + "..." + key[len(key)-4:]
	}
}

// NeedsAPIKey reports whether the configuration requires a direct API key.
// Bedrock authenticates through the AWS credential chain instead.
func NeedsAPIKey(cfg *Config) bool {
	return cfg != nil && cfg.Router.Classifier == "llm" && !cfg.LLM.UseBedrock
}
