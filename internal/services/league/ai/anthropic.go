package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultMaxTokens  = 1024
	maxAttempts       = 3
	initialBackoff    = 500 * time.Millisecond
	perRequestTimeout = 60 * time.Second
)

// MessagesClient captures the subset of the Anthropic SDK used here. It is
// satisfied by *sdk.MessageService so tests can pass a stub.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic implements Generator over the Claude Messages API with bounded
// retry on transient failures.
type Anthropic struct {
	msg   MessagesClient
	model string
	sleep func(time.Duration)
}

// NewAnthropic builds a Claude-backed generator.
func NewAnthropic(apiKey, model string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if model == "" {
		return nil, errors.New("model identifier is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{msg: &client.Messages, model: model, sleep: time.Sleep}, nil
}

// NewAnthropicWithClient builds a generator over an injected messages client.
func NewAnthropicWithClient(msg MessagesClient, model string) (*Anthropic, error) {
	if msg == nil {
		return nil, errors.New("messages client is required")
	}
	if model == "" {
		return nil, errors.New("model identifier is required")
	}
	return &Anthropic{msg: msg, model: model, sleep: time.Sleep}, nil
}

// Generate issues a Messages.New call. Transient failures (rate limits,
// server errors, timeouts) retry with doubling backoff up to maxAttempts;
// anything else wraps ErrPermanent.
func (a *Anthropic) Generate(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.msg == nil {
		return Response{}, fmt.Errorf("anthropic client is not configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     sdk.Model(a.model),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		msg, err := a.call(ctx, params)
		if err == nil {
			return Response{
				Text:         collectText(msg),
				Model:        string(msg.Model),
				InputTokens:  int(msg.Usage.InputTokens),
				OutputTokens: int(msg.Usage.OutputTokens),
				CacheTokens:  int(msg.Usage.CacheReadInputTokens + msg.Usage.CacheCreationInputTokens),
				Latency:      time.Since(start),
			}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		if !isTransient(err) {
			return Response{}, fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		if attempt < maxAttempts {
			a.sleep(backoff)
			backoff *= 2
		}
	}
	return Response{}, fmt.Errorf("anthropic messages.new after %d attempts: %w", maxAttempts, lastErr)
}

func (a *Anthropic) call(ctx context.Context, params sdk.MessageNewParams) (*sdk.Message, error) {
	callCtx, cancel := context.WithTimeout(ctx, perRequestTimeout)
	defer cancel()
	return a.msg.New(callCtx, params)
}

func collectText(msg *sdk.Message) string {
	if msg == nil {
		return ""
	}
	text := ""
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}

// isTransient reports whether the failure is worth retrying: rate limits,
// server-side errors, and deadline expiry on an otherwise live context.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
