package agent

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cortexai/opsinsight/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Model is the text-completion collaborator. It never returns an error: ok is
// false once every attempt has failed.
type Model interface {
	Complete(ctx context.Context, system, user string) (text string, ok bool)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, system, user string) (string, bool)

func (f ModelFunc) Complete(ctx context.Context, system, user string) (string, bool) {
	return f(ctx, system, user)
}

// ModelOptions configures AnthropicModel.
type ModelOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration // per attempt
	Retries    int           // extra attempts after the first
	RetryDelay time.Duration
}

// AnthropicModel calls the Messages API with a fixed per-attempt timeout and a
// bounded number of retries separated by a fixed delay.
type AnthropicModel struct {
	client     *anthropic.Client
	model      string
	maxTokens  int
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
}

// NewAnthropicModel creates a model backed by Anthropic Claude or a compatible provider
func NewAnthropicModel(opts ModelOptions) *AnthropicModel {
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-6"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// retries are counted here, not in the SDK
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &AnthropicModel{
		client:     anthropic.NewClient(reqOpts...),
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
		timeout:    opts.Timeout,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
	}
}

// Complete implements Model
func (m *AnthropicModel) Complete(ctx context.Context, system, user string) (string, bool) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(m.model)),
		MaxTokens: anthropic.F(int64(m.maxTokens)),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		}),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		})
	}

	return withRetry(ctx, m.retries, m.retryDelay, func(ctx context.Context) (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		resp, err := m.client.Messages.New(attemptCtx, params)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
				sb.WriteString(b.Text)
			}
		}
		log.Debug().
			Str("stop_reason", string(resp.StopReason)).
			Int("chars", sb.Len()).
			Msg("model call")
		return sb.String(), nil
	})
}

// withRetry runs call up to retries+1 times. An empty reply counts as a failure.
func withRetry(ctx context.Context, retries int, delay time.Duration, call func(context.Context) (string, error)) (string, bool) {
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			metrics.ModelCalls.WithLabelValues("retry").Inc()
			select {
			case <-ctx.Done():
				metrics.ModelCalls.WithLabelValues("failed").Inc()
				return "", false
			case <-time.After(delay):
			}
		}

		text, err := call(ctx)
		if err == nil && strings.TrimSpace(text) != "" {
			metrics.ModelCalls.WithLabelValues("ok").Inc()
			return text, true
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Int("max_attempts", retries+1).Msg("model call failed")
	}
	metrics.ModelCalls.WithLabelValues("failed").Inc()
	return "", false
}
