// Package repair calls an LLM to fix test suites that stopped
// compiling, typically after refinement dropped an import or renamed a
// symbol.
package repair

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Config contains settings for the repair client.
type Config struct {
	// Model is the model to use; defaults to Claude Sonnet.
	Model string `mapstructure:"model"`
	// APIKey falls back to the ANTHROPIC_API_KEY env var when empty.
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes requests through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is an optional shared-config profile.
	AWSProfile string `mapstructure:"aws_profile"`
	// MaxTokens bounds each completion.
	MaxTokens int64 `mapstructure:"max_tokens"`
	// MaxAttempts bounds the repair loop per suite.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// DefaultConfig returns repair defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   8192,
		MaxAttempts: 3,
	}
}

// Client wraps the Anthropic SDK with token tracking.
type Client struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
	tracker   *TokenTracker
}

// NewClient creates a repair client.
func NewClient(cfg Config) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultConfig().MaxTokens
	}

	return &Client{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		tracker:   NewTokenTracker(),
	}, nil
}

// translateModelForBedrock converts model names to Bedrock
// cross-region inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Tracker returns the token tracker for this client.
func (c *Client) Tracker() *TokenTracker {
	return c.tracker
}

// complete makes a single completion call and returns the concatenated
// text blocks.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
