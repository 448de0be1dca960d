// Package api provides the Anthropic API client used by the LLM classifier.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/logging"
)

const (
	defaultModel              = anthropic.ModelClaudeHaiku4_5_20251001
	defaultMaxTokens          = 512
	defaultRequestsPerSecond  = 2.0
	defaultBurst              = 4
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 30 * time.Second
	defaultBreakerInterval    = 60 * time.Second
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("anthropic circuit open")

// bedrockProfiles maps public model ids to Bedrock inference profiles.
var bedrockProfiles = map[anthropic.Model]anthropic.Model{
	anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
	anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-haiku-4-5":                      "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-sonnet-4-5":                     "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
}

type sendFunc func(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error)

// Client sends single-turn prompts to Claude. Calls are rate limited and
// pass through a circuit breaker; token usage is counted.
type Client struct {
	send    sendFunc
	model   anthropic.Model
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
	usage   *Usage
	logger  *slog.Logger
}

// ClientConfig configures NewClient. Zero values select defaults.
type ClientConfig struct {
	Model anthropic.Model
	// APIKey falls back to $ANTHROPIC_API_KEY. Ignored with Bedrock.
	APIKey string

	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string

	RequestsPerSecond float64
	Burst             int
	// BreakerMaxFailures consecutive failures open the circuit for BreakerTimeout.
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration

	Logger *slog.Logger
}

// NewClient builds a client for the direct API or, with UseAWSBedrock, for Bedrock.
func NewClient(cfg ClientConfig) (*Client, error) {
	reqOpts, err := requestOptions(cfg)
	if err != nil {
		return nil, err
	}
	sdk := anthropic.NewClient(reqOpts...)

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	if cfg.UseAWSBedrock {
		model = bedrockModel(model)
	}

	return newClient(cfg, model, func(ctx context.Context, p anthropic.MessageNewParams) (*anthropic.Message, error) {
		return sdk.Messages.New(ctx, p)
	}), nil
}

func requestOptions(cfg ClientConfig) ([]option.RequestOption, error) {
	if cfg.UseAWSBedrock {
		var load []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			load = append(load, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			load = append(load, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		return []option.RequestOption{bedrock.WithLoadDefaultConfig(context.Background(), load...)}, nil
	}

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(config.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: set %s or llm.api_key", config.ErrNoAPIKey, config.APIKeyEnv)
	}
	return []option.RequestOption{option.WithAPIKey(key)}, nil
}

// bedrockModel returns the inference profile for model, or model itself when
// it is already a Bedrock id.
func bedrockModel(model anthropic.Model) anthropic.Model {
	if p, ok := bedrockProfiles[model]; ok {
		return p
	}
	return model
}

func newClient(cfg ClientConfig, model anthropic.Model, send sendFunc) *Client {
	logger := logging.OrDiscard(cfg.Logger).With("component", "api")

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	openFor := cfg.BreakerTimeout
	if openFor <= 0 {
		openFor = defaultBreakerTimeout
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "anthropic:" + string(model),
		MaxRequests: 1,
		Interval:    defaultBreakerInterval,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about the API's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Client{
		send:    send,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
		usage:   &Usage{},
		logger:  logger,
	}
}

// Model is the model id requests are sent with.
func (c *Client) Model() anthropic.Model { return c.model }

// Usage exposes the client's token counters.
func (c *Client) Usage() *Usage { return c.usage }

// BreakerState is the breaker's current state: closed, half-open, or open.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// Complete sends one user turn under system and returns the reply's text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	text, err := c.breaker.Execute(func() (string, error) {
		msg, err := c.send(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: defaultMaxTokens,
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		})
		if err != nil {
			return "", err
		}
		c.usage.record(msg.Usage.InputTokens, msg.Usage.OutputTokens)
		c.logger.Debug("completion",
			"model", c.model,
			"input_tokens", msg.Usage.InputTokens,
			"output_tokens", msg.Usage.OutputTokens,
			"calls", c.usage.Calls(),
		)
		return replyText(msg), nil
	})
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	default:
		return "", fmt.Errorf("messages.new: %w", err)
	}
}

func replyText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}
