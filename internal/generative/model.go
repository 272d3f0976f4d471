package generative

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

//go:generate mockgen -source=model.go -destination=mocks/mock_model.go -package=mocks

// Request is one structured generation call.
type Request struct {
	System string
	Prompt string
	Schema *genai.Schema // shape the response must follow
}

// Model is the port to a text generation backend. It returns the raw response
// text; parsing happens in Service.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GenAIModel implements Model with the Google GenAI API.
type GenAIModel struct {
	client *genai.Client
	model  string
}

// NewGenAIModel creates a Gemini-backed model.
func NewGenAIModel(ctx context.Context, apiKey, model string) (*GenAIModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIModel{client: client, model: model}, nil
}

func (m *GenAIModel) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GenAI returned no candidates")
	}
	return text, nil
}
