package dialogue

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/lexiqai/voice-assistant/internal/config"
)

// GeminiGenerator is the production Generator backed by the Gemini API
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client authenticated with cfg.GoogleAPIKey
func NewGeminiGenerator(ctx context.Context, cfg *config.Config) (*GeminiGenerator, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required for the dialogue model")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.GeminiModel
	if model == "" {
		model = "gemini-1.5-pro"
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Model returns the configured model name
func (g *GeminiGenerator) Model() string {
	return g.model
}

// Generate implements Generator
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		TopP:            genai.Ptr(req.TopP),
		TopK:            genai.Ptr(req.TopK),
		MaxOutputTokens: req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}
