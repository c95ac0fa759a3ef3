package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAPIKey(t *testing.T) {
	t.Run("from environment variable", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

		key, err := GetAPIKey(&Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}})
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-test-key", key)
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		key, err := GetAPIKey(&Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}})
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-config-key", key)
	})

	t.Run("unresolved reference", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("FRACTAL_TEST_UNSET", "")

		_, err := GetAPIKey(&Config{Anthropic: AnthropicConfig{APIKey: "${FRACTAL_TEST_UNSET}"}})
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})

	t.Run("no key configured", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		_, err := GetAPIKey(&Config{})
		assert.ErrorIs(t, err, ErrNoAPIKey)

		_, err = GetAPIKey(nil)
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid key", "sk-ant-REDACTED", nil},
		{"empty key", "", ErrNoAPIKey},
		{"wrong prefix", "sk-openai-12345678901234567890", ErrInvalidAPIKey},
		{"too short", "sk-ant-abc", ErrInvalidAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "sk-ant-...wxyz", MaskAPIKey("sk-ant-REDACTED"))
	assert.Equal(t, "(not set)", MaskAPIKey(""))
	assert.Equal(t, "***", MaskAPIKey("short"))
}

func TestGetAPIKeySource(t *testing.T) {
	t.Run("from environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "test-key")
		assert.Equal(t, KeySourceEnv, GetAPIKeySource(&Config{}))
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}}
		assert.Equal(t, KeySourceConfig, GetAPIKeySource(cfg))
	})

	t.Run("bedrock", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "test-key")
		cfg := &Config{Anthropic: AnthropicConfig{UseBedrock: true}}
		assert.Equal(t, KeySourceBedrock, GetAPIKeySource(cfg))
	})

	t.Run("no key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		assert.Equal(t, KeySourceNone, GetAPIKeySource(&Config{}))
	})
}
