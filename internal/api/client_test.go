package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_WithAPIKey(t *testing.T) {
	client, err := NewClient(ClientConfig{
		APIKey: "test-key-123",
		Model:  anthropic.ModelClaudeSonnet4_20250514,
	})
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.Equal(t, anthropic.ModelClaudeSonnet4_20250514, client.Model())
	assert.Zero(t, client.Usage().Calls)
}

func TestNewClient_WithEnvVar(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-test-key")

	client, err := NewClient(ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, anthropic.ModelClaudeSonnet4_20250514, client.Model(), "empty model falls back to default")
}

func TestNewClient_NoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewClient_BedrockModel(t *testing.T) {
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	client, err := NewClient(ClientConfig{UseAWSBedrock: true, AWSRegion: "us-west-2"})
	require.NoError(t, err)
	assert.Equal(t, anthropic.Model("us.anthropic.claude-sonnet-4-20250514-v1:0"), client.Model())
}

func TestBedrockModel(t *testing.T) {
	tests := []struct {
		in   anthropic.Model
		want anthropic.Model
	}{
		{anthropic.ModelClaudeSonnet4_20250514, "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{"us.anthropic.claude-sonnet-4-20250514-v1:0", "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{anthropic.ModelClaudeHaiku4_5_20251001, "us.anthropic.claude-haiku-4-5-20251001-v1:0"},
		{"some-unknown-model", "some-unknown-model"},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, bedrockModel(tt.in))
		})
	}
}

func TestClient_CreateMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "forty-two"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	msg, err := client.CreateMessage(context.Background(), anthropic.MessageNewParams{
		MaxTokens: 64,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("question")),
		},
	})
	require.NoError(t, err)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "forty-two", msg.Content[0].Text)

	assert.Equal(t, string(anthropic.ModelClaudeSonnet4_20250514), got["model"])

	usage := client.Usage()
	assert.Equal(t, int64(12), usage.InputTokens)
	assert.Equal(t, int64(3), usage.OutputTokens)
	assert.Equal(t, 1, usage.Calls)
}

func TestClient_CreateMessage_ErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.CreateMessage(context.Background(), anthropic.MessageNewParams{
		MaxTokens: 64,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("question")),
		},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, client.Usage().Calls)
}

func TestUsageMeter(t *testing.T) {
	var m UsageMeter

	m.Add(anthropic.ModelClaudeSonnet4_20250514, 100, 50)
	m.Add(anthropic.ModelClaudeSonnet4_20250514, 200, 100)

	usage := m.Snapshot()
	assert.Equal(t, int64(300), usage.InputTokens)
	assert.Equal(t, int64(150), usage.OutputTokens)
	assert.Equal(t, 2, usage.Calls)
}

func TestUsageMeter_CostByFamily(t *testing.T) {
	tests := []struct {
		model anthropic.Model
		want  float64
	}{
		{anthropic.ModelClaudeSonnet4_20250514, 18},
		{anthropic.ModelClaudeHaiku4_5_20251001, 6},
		{anthropic.ModelClaudeOpus4_1_20250805, 90},
		{"us.anthropic.claude-opus-4-1-20250805-v1:0", 90},
		{"custom-model", 18},
	}

	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			var m UsageMeter
			m.Add(tt.model, 1_000_000, 1_000_000)
			assert.InDelta(t, tt.want, m.Snapshot().CostUSD, 0.0001)
		})
	}
}
