package recognize

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, Qwen's compatible mode, local gateways).
type OpenAIClient struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	maxTokens  int
}

func NewOpenAIClient(apiKey, baseURL, model string, maxTokens int, timeout time.Duration) *OpenAIClient {
	httpClient := &http.Client{Timeout: timeout}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = httpClient
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(cfg),
		httpClient: httpClient,
		model:      model,
		maxTokens:  maxTokens,
	}
}

func (c *OpenAIClient) Model() string { return c.model }

// Recognize sends the prompt and the page image as one multi-part user message.
func (c *OpenAIClient) Recognize(ctx context.Context, req Request) (string, error) {
	dataURL := "data:" + req.mimeType() + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", classifyOpenAI(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from %s", c.model)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAI(ctx context.Context, err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if retryableStatus(reqErr.HTTPStatusCode) {
			return &RetryableError{StatusCode: reqErr.HTTPStatusCode, Message: string(reqErr.Body), Err: err}
		}
		return fmt.Errorf("openai api status %d: %w", reqErr.HTTPStatusCode, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if retryableStatus(apiErr.HTTPStatusCode) {
			return &RetryableError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
		}
		return fmt.Errorf("openai api status %d: %w", apiErr.HTTPStatusCode, err)
	}
	return classifyTransport(ctx, err)
}

// Close releases resources.
func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
