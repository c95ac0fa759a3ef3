// Package api wraps the Anthropic Messages API for the reasoning oracles.
package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = anthropic.ModelClaudeSonnet4_20250514

// ErrMissingAPIKey is returned when no API key is configured for direct access.
var ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY environment variable is not set")

// Client wraps the Anthropic SDK client with usage accounting.
type Client struct {
	inner   anthropic.Client
	model   anthropic.Model
	bedrock bool
	usage   *UsageMeter
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// Model is the Claude model to use (e.g., anthropic.ModelClaudeSonnet4_20250514).
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// MaxRetries is the number of SDK-level retries per call. Zero disables them.
	MaxRetries int
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// NewClient creates a new Anthropic API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	opts, err := requestOptions(cfg)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if cfg.UseAWSBedrock {
		model = bedrockModel(model)
	}

	return &Client{
		inner:   anthropic.NewClient(opts...),
		model:   model,
		bedrock: cfg.UseAWSBedrock,
		usage:   &UsageMeter{},
	}, nil
}

// requestOptions turns cfg into SDK options. SDK retries are off unless
// MaxRetries asks for them; the engine owns the retry policy.
func requestOptions(cfg ClientConfig) ([]option.RequestOption, error) {
	opts := []option.RequestOption{option.WithMaxRetries(max(cfg.MaxRetries, 0))}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	if cfg.UseAWSBedrock {
		var load []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			load = append(load, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			load = append(load, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		return append(opts, bedrock.WithLoadDefaultConfig(context.Background(), load...)), nil
	}

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	return append(opts, option.WithAPIKey(key)), nil
}

// bedrockModel maps a Claude model ID onto its US cross-region inference
// profile. IDs that already name a profile, and non-Claude IDs, pass through.
func bedrockModel(model anthropic.Model) anthropic.Model {
	m := string(model)
	if strings.HasPrefix(m, "us.") || !strings.HasPrefix(m, "claude-") {
		return model
	}
	return anthropic.Model("us.anthropic." + m + "-v1:0")
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Usage returns the token usage accumulated by this client.
func (c *Client) Usage() Usage {
	return c.usage.Snapshot()
}

// CreateMessage sends one Messages API request and records its token usage.
// An empty params.Model is filled with the client's model.
func (c *Client) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if params.Model == "" {
		params.Model = c.model
	} else if c.bedrock {
		params.Model = bedrockModel(params.Model)
	}

	msg, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	c.usage.Add(params.Model, msg.Usage.InputTokens, msg.Usage.OutputTokens)
	return msg, nil
}
