package groq

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"github.com/focusmon/screenwatch/internal/domain/vision"
	"github.com/focusmon/screenwatch/internal/infra/ai/prompt"
	"github.com/focusmon/screenwatch/internal/infra/ratelimit"
)

const healthProbeTokens = 10

// chatCompleter is the slice of the OpenAI-compatible client the adapter
// uses. *openai.Client satisfies it; tests swap in a fake.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	MaxRetries  int
	BaseDelay   time.Duration
}

// Client calls the Groq vision API through the OpenAI-compatible chat
// completions endpoint. It rate-limits and retries internally; callers see
// either a fully defaulted Annotation or a terminal error.
type Client struct {
	chat    chatCompleter
	limiter *ratelimit.Limiter
	source  vision.ImageSource

	model       string
	temperature float32
	maxTokens   int
	maxRetries  int
	baseDelay   time.Duration
}

func New(opts Options, limiter *ratelimit.Limiter, source vision.ImageSource) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &Client{
		chat:        openai.NewClientWithConfig(cfg),
		limiter:     limiter,
		source:      source,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		maxRetries:  opts.MaxRetries,
		baseDelay:   opts.BaseDelay,
	}
}

// Analyze runs one capture through the vision model. Transient failures are
// retried with exponential backoff (baseDelay * 2^attempt); a missing
// resource short-circuits because waiting will not make the file appear.
func (c *Client) Analyze(ctx context.Context, locator string) (*vision.Annotation, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			log.WithFields(log.Fields{
				"locator": locator,
				"attempt": attempt + 1,
				"delay":   delay.String(),
			}).Info("retrying screenshot analysis")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		a, err := c.analyzeOnce(ctx, locator, attempt)
		if err == nil {
			return a, nil
		}
		if errors.Is(err, vision.ErrResourceUnavailable) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("analysis failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) analyzeOnce(ctx context.Context, locator string, attempt int) (*vision.Annotation, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	img, err := c.source.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"locator": locator,
		"model":   c.model,
		"attempt": attempt + 1,
	}).Info("sending screenshot to vision API")

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		TopP:        1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt.GetAnalysisPrompt()},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/webp;base64," + base64.StdEncoding.EncodeToString(img),
						},
					},
				},
			},
		},
	}

	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			return nil, fmt.Errorf("%w: %v", vision.ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("vision call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, vision.ErrEmptyResponse
	}

	a, err := vision.ParseAnnotation(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"locator":       locator,
		"app_name":      a.AppName,
		"activity_type": a.ActivityType,
		"confidence":    a.Confidence,
	}).Info("screenshot analysis completed")
	return a, nil
}

// CheckHealth issues a minimal text probe against the configured model.
func (c *Client) CheckHealth(ctx context.Context) error {
	_, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: healthProbeTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Test"},
		},
	})
	return err
}
