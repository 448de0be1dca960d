package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		configured string
		wantKey    string
		wantSource KeySource
		wantErr    error
	}{
		{name: "environment wins", env: "sk-ant-env", configured: "sk-ant-file", wantKey: "sk-ant-env", wantSource: KeySourceEnv},
		{name: "config file", configured: "sk-ant-file", wantKey: "sk-ant-file", wantSource: KeySourceConfig},
		{name: "config expands variables", configured: "${CONDUCTOR_TEST_KEY}", wantKey: "sk-ant-expanded", wantSource: KeySourceConfig},
		{name: "unset reference", configured: "${CONDUCTOR_MISSING_KEY}", wantSource: KeySourceNone, wantErr: ErrNoAPIKey},
		{name: "nothing configured", wantSource: KeySourceNone, wantErr: ErrNoAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(APIKeyEnv, tt.env)
			t.Setenv("CONDUCTOR_TEST_KEY", "sk-ant-expanded")
			t.Setenv("CONDUCTOR_MISSING_KEY", "")

			key, source, err := ResolveAPIKey(&Config{LLM: LLMConfig{APIKey: tt.configured}})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestResolveAPIKeyNilConfig(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	_, source, err := ResolveAPIKey(nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
	assert.Equal(t, KeySourceNone, source)
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "sk-ant-...wxyz", MaskAPIKey("sk-ant-REDACTED"))
	assert.Equal(t, "(not set)", MaskAPIKey(""))
	assert.Equal(t, "***", MaskAPIKey("short"))
}

func TestNeedsAPIKey(t *testing.T) {
	assert.False(t, NeedsAPIKey(nil))
	assert.False(t, NeedsAPIKey(&Config{Router: RouterConfig{Classifier: "rules"}}))
	assert.True(t, NeedsAPIKey(&Config{Router: RouterConfig{Classifier: "llm"}}))
	assert.False(t, NeedsAPIKey(&Config{
		Router: RouterConfig{Classifier: "llm"},
		LLM:    LLMConfig{UseBedrock: true},
	}))
}
