package generator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/tbourn/support-router/internal/observability"
)

const defaultGeminiModel = "gemini-2.5-flash"

// geminiModels is the part of *genai.Models the generator uses.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates replies with Google's Gemini API.
type Gemini struct {
	models geminiModels
	model  string
}

// NewGemini creates a Gemini generator. An empty model selects the default.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("generator: gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("generator: create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{models: client.Models, model: model}, nil
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, req Request) (Result, error) {
	ctx, span := observability.Tracer("generator/Gemini").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("conversation.id", req.ConversationID),
			attribute.String("model", g.model),
		),
	)
	defer span.End()

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := genai.Role(genai.RoleUser)
		if t.Role != RoleCustomer {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(userPrompt(req), genai.RoleUser))

	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("generator: gemini: %w", err)
	}
	if resp == nil {
		return Result{}, ErrEmptyAnswer
	}
	return parseStructured(resp.Text(), g.model)
}
