package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"
)

// Default sampling temperatures per call kind.
const (
	DefaultDecisionTemperature  = 0.7
	DefaultSynthesisTemperature = 0.6
	DefaultReconcileTemperature = 0.5
	DefaultMaxTokens            = 4096
)

// ErrEmptyResponse is returned when the model produced no usable content.
var ErrEmptyResponse = errors.New("empty model response")

// Messenger sends one Messages API request. *api.Client implements it.
type Messenger interface {
	CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// ClaudeConfig configures the Claude-backed oracles.
type ClaudeConfig struct {
	Client    Messenger
	Model     anthropic.Model
	MaxTokens int64

	DecisionTemperature  float64
	SynthesisTemperature float64
	ReconcileTemperature float64

	Logger *zap.Logger
}

// Claude implements TaskOracle, SynthesisOracle and Reconciler on the
// Anthropic Messages API.
type Claude struct {
	cfg    ClaudeConfig
	logger *zap.Logger
}

// NewClaude creates a Claude oracle. Zero temperatures and token limits take
// their defaults.
func NewClaude(cfg ClaudeConfig) (*Claude, error) {
	if cfg.Client == nil {
		return nil, errors.New("claude oracle: nil client")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.DecisionTemperature == 0 {
		cfg.DecisionTemperature = DefaultDecisionTemperature
	}
	if cfg.SynthesisTemperature == 0 {
		cfg.SynthesisTemperature = DefaultSynthesisTemperature
	}
	if cfg.ReconcileTemperature == 0 {
		cfg.ReconcileTemperature = DefaultReconcileTemperature
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Claude{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "oracle")),
	}, nil
}

// Decide asks the model to answer or delegate. Terminal agents get no tools,
// so they can only answer.
func (c *Claude) Decide(ctx context.Context, req TaskRequest) (Decision, error) {
	params := anthropic.MessageNewParams{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: anthropic.Float(c.cfg.DecisionTemperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(req)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Task)),
		},
	}
	if req.AllowedChildren > 0 {
		params.Tools = []anthropic.ToolUnionParam{delegateTool()}
		params.ToolChoice = toolChoice(req.ForceDelegation)
	}

	resp, err := c.cfg.Client.CreateMessage(ctx, params)
	if err != nil {
		return Decision{}, fmt.Errorf("decide layer %d: %w", req.Layer, err)
	}

	var text strings.Builder
	var input *delegateInput
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			if variant.Name != DelegateToolName || input != nil {
				continue
			}
			var in delegateInput
			if err := json.Unmarshal(variant.Input, &in); err != nil {
				return Decision{}, fmt.Errorf("decode %s input: %w", DelegateToolName, err)
			}
			input = &in
		}
	}

	if input != nil {
		c.logger.Debug("agent delegated",
			zap.Int("layer", req.Layer),
			zap.Int("subtasks", len(input.Tasks)),
			zap.Int("allowed", req.AllowedChildren),
		)
		return Delegate(input.Tasks, input.Reason).WithText(text.String()), nil
	}

	if text.Len() == 0 {
		return Decision{}, ErrEmptyResponse
	}
	return Direct(text.String()), nil
}

// Synthesize merges child results into one answer.
func (c *Claude) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	req.Results = FilterResults(req.Results)
	return c.complete(ctx,
		fmt.Sprintf(synthesisPrompt, len(req.Results), req.Goal),
		synthesisUserMessage(req),
		c.cfg.SynthesisTemperature,
	)
}

// Reconcile merges the answers of independent runs.
func (c *Claude) Reconcile(ctx context.Context, req ReconcileRequest) (string, error) {
	return c.complete(ctx,
		fmt.Sprintf(reconcilePrompt, len(req.Answers)),
		reconcileUserMessage(req),
		c.cfg.ReconcileTemperature,
	)
}

func (c *Claude) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	resp, err := c.cfg.Client.CreateMessage(ctx, anthropic.MessageNewParams{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
