package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/support-router/internal/observability"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// APIError is a non-2xx reply from an OpenAI-compatible endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generator: openai API %d: %s", e.StatusCode, e.Body)
}

// OpenAI generates replies with any OpenAI-compatible chat completions API
// (OpenAI, DeepSeek, Groq, OpenRouter, local servers).
type OpenAI struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Model      string
}

// NewOpenAI returns an OpenAI-compatible generator.
func NewOpenAI(baseURL, apiKey, model string) (*OpenAI, error) {
	if model == "" {
		return nil, errors.New("generator: openai model is required")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Model:      model,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate implements Generator.
func (g *OpenAI) Generate(ctx context.Context, req Request) (Result, error) {
	ctx, span := observability.Tracer("generator/OpenAI").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("conversation.id", req.ConversationID),
			attribute.String("model", g.Model),
		),
	)
	defer span.End()

	msgs := make([]chatMessage, 0, len(req.History)+2)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	for _, t := range req.History {
		role := "assistant"
		if t.Role == RoleCustomer {
			role = "user"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: t.Text})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userPrompt(req)})

	payload, err := json.Marshal(chatRequest{
		Model:          g.Model,
		Messages:       msgs,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Result{}, fmt.Errorf("generator: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("generator: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	client := g.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("generator: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("generator: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		span.RecordError(apiErr)
		return Result{}, apiErr
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return Result{}, fmt.Errorf("generator: decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Result{}, ErrEmptyAnswer
	}
	return parseStructured(cr.Choices[0].Message.Content, g.Model)
}
