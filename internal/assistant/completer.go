package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/teemow/lifeassist/internal/instrumentation"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-7-sonnet-20250219"

	// DefaultMaxTokens caps the length of a reply.
	DefaultMaxTokens = 4096
)

// Roles of a chat message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// Completion is a model reply.
type Completion struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Completer produces a reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, system string, history []Message) (*Completion, error)
}

// AnthropicConfig configures an AnthropicCompleter.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// BaseURL overrides the API endpoint, for tests.
	BaseURL    string
	HTTPClient *http.Client
	Metrics    *instrumentation.Metrics
}

// AnthropicCompleter calls the Anthropic Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	metrics   *instrumentation.Metrics
}

// NewAnthropicCompleter creates a completer. The API key is required.
func NewAnthropicCompleter(cfg AnthropicConfig) (*AnthropicCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are left to the caller; a failed chat turn is reported as is.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}

	return &AnthropicCompleter{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		metrics:   metrics,
	}, nil
}

// Model returns the configured model name.
func (c *AnthropicCompleter) Model() string {
	return c.model
}

// Complete sends the conversation and returns the text of the reply.
func (c *AnthropicCompleter) Complete(ctx context.Context, system string, history []Message) (*Completion, error) {
	ctx, span := instrumentation.StartRemoteSpan(ctx, instrumentation.ServiceAnthropic, instrumentation.OperationComplete)
	defer span.End()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  toMessageParams(history),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceAnthropic, instrumentation.OperationComplete, instrumentation.StatusError, time.Since(start))
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	instrumentation.SetSpanSuccess(span)
	c.metrics.RecordRemoteOperation(ctx, instrumentation.ServiceAnthropic, instrumentation.OperationComplete, instrumentation.StatusSuccess, time.Since(start))
	c.metrics.RecordAssistantTokens(ctx, c.model, msg.Usage.InputTokens, msg.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Completion{
		Text: text.String(),
		Usage: Usage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
			TotalTokens:      msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}, nil
}

func toMessageParams(history []Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	return params
}
