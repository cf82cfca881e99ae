package recognize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VertexClient sends page images to Gemini on Vertex AI.
type VertexClient struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	name    string
	timeout time.Duration
}

// NewVertexClient authenticates with application default credentials.
func NewVertexClient(ctx context.Context, project, location, model string, maxTokens int, timeout time.Duration) (*VertexClient, error) {
	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("create vertex client: %w", err)
	}
	gm := client.GenerativeModel(model)
	gm.SetMaxOutputTokens(int32(maxTokens))
	gm.SetTemperature(0)
	return &VertexClient{
		client:  client,
		model:   gm,
		name:    model,
		timeout: timeout,
	}, nil
}

func (c *VertexClient) Model() string { return c.name }

func (c *VertexClient) Recognize(ctx context.Context, req Request) (string, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	format := strings.TrimPrefix(req.mimeType(), "image/")
	resp, err := c.model.GenerateContent(callCtx, genai.ImageData(format, req.Image), genai.Text(req.Prompt))
	if err != nil {
		return "", classifyVertex(ctx, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from %s", c.name)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text in response from %s", c.name)
	}
	return sb.String(), nil
}

func classifyVertex(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded,
			codes.Internal, codes.Aborted:
			return &RetryableError{Message: st.Message(), Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RetryableError{Message: "request timed out", Err: err}
	}
	return classifyTransport(ctx, err)
}

// Close releases the underlying gRPC connection.
func (c *VertexClient) Close() error {
	return c.client.Close()
}
