package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 1024
)

type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	reqOpts   []option.RequestOption
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = anthropic.Model(model)
		}
	}
}

func WithMaxTokens(n int64) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithRequestOptions passes extra options, such as a base URL, to the SDK client.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *Client) { c.reqOpts = append(c.reqOpts, opts...) }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		model:     anthropic.Model(DefaultModel),
		maxTokens: DefaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	c.client = anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.reqOpts...)...)
	return c
}

// Complete sends a single user turn and returns the concatenated text reply.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return strings.Join(parts, "\n"), nil
}
