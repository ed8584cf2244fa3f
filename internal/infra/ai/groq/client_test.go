package groq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmon/screenwatch/internal/domain/vision"
	"github.com/focusmon/screenwatch/internal/infra/ratelimit"
)

type fakeChat struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	calls int
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, req)
}

type fakeSource struct {
	fn func(ctx context.Context, locator string) ([]byte, error)
}

func (f *fakeSource) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f.fn(ctx, locator)
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func newTestClient(t *testing.T, chat *fakeChat, source vision.ImageSource, maxRetries int) *Client {
	t.Helper()
	limiter := ratelimit.New(100, time.Minute)
	t.Cleanup(limiter.Close)
	if source == nil {
		source = &fakeSource{fn: func(context.Context, string) ([]byte, error) {
			return []byte("webp-bytes"), nil
		}}
	}
	return &Client{
		chat:       chat,
		limiter:    limiter,
		source:     source,
		model:      "test-model",
		maxTokens:  128,
		maxRetries: maxRetries,
		baseDelay:  time.Millisecond,
	}
}

func TestAnalyzeSucceedsFirstTry(t *testing.T) {
	chat := &fakeChat{fn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return reply(`{"app_name": "Firefox", "activity_category": "distracting"}`), nil
	}}
	c := newTestClient(t, chat, nil, 3)

	a, err := c.Analyze(context.Background(), "shots/1.webp")
	require.NoError(t, err)
	assert.Equal(t, 1, chat.calls)
	assert.Equal(t, "Firefox", a.AppName)
	assert.Equal(t, vision.CategoryDistracting, a.ActivityCategory)
}

func TestAnalyzeRetriesTransientErrors(t *testing.T) {
	chat := &fakeChat{}
	chat.fn = func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if chat.calls < 3 {
			return openai.ChatCompletionResponse{}, errors.New("upstream hiccup")
		}
		return reply(`{"app_name": "Slack"}`), nil
	}
	c := newTestClient(t, chat, nil, 3)

	a, err := c.Analyze(context.Background(), "shots/2.webp")
	require.NoError(t, err)
	assert.Equal(t, 3, chat.calls, "two failures then one success")
	assert.Equal(t, "Slack", a.AppName)
}

func TestAnalyzeGivesUpAfterMaxRetries(t *testing.T) {
	chat := &fakeChat{fn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, errors.New("upstream down")
	}}
	c := newTestClient(t, chat, nil, 3)

	_, err := c.Analyze(context.Background(), "shots/3.webp")
	require.Error(t, err)
	assert.Equal(t, 4, chat.calls, "initial attempt plus three retries")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestAnalyzeFailsFastWhenResourceMissing(t *testing.T) {
	chat := &fakeChat{fn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		t.Fatal("the API must not be called when the image is missing")
		return openai.ChatCompletionResponse{}, nil
	}}
	source := &fakeSource{fn: func(context.Context, string) ([]byte, error) {
		return nil, vision.ErrResourceUnavailable
	}}
	c := newTestClient(t, chat, source, 3)

	_, err := c.Analyze(context.Background(), "shots/missing.webp")
	assert.ErrorIs(t, err, vision.ErrResourceUnavailable)
	assert.Equal(t, 0, chat.calls)
}

func TestAnalyzeMapsQuotaErrors(t *testing.T) {
	chat := &fakeChat{fn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: 429, Message: "rate limit reached"}
	}}
	c := newTestClient(t, chat, nil, 0)

	_, err := c.Analyze(context.Background(), "shots/4.webp")
	assert.ErrorIs(t, err, vision.ErrQuotaExceeded)
}

func TestAnalyzeEmptyReply(t *testing.T) {
	chat := &fakeChat{fn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, nil
	}}
	c := newTestClient(t, chat, nil, 0)

	_, err := c.Analyze(context.Background(), "shots/5.webp")
	assert.ErrorIs(t, err, vision.ErrEmptyResponse)
}

func TestAnalyzeAbortsOnContextCancel(t *testing.T) {
	chat := &fakeChat{fn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, errors.New("slow upstream")
	}}
	c := newTestClient(t, chat, nil, 5)
	c.baseDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Analyze(ctx, "shots/6.webp")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, chat.calls, "no retry once the context is gone")
}
