package chat

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenaiClient implements Client over the official SDK. Same conversation
// semantics as the HTTP backend; retry policy is the SDK's own.
type GenaiClient struct {
	client      *genai.Client
	model       string
	temperature float64
	plantName   string
	deviation   func() float64
}

// NewGenaiClient creates the SDK-backed client.
func NewGenaiClient(cfg Config) (*GenaiClient, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.9
	}
	deviation := cfg.Deviation
	if deviation == nil {
		deviation = func() float64 { return 0 }
	}
	return &GenaiClient{
		client:      client,
		model:       model,
		temperature: temperature,
		plantName:   cfg.PlantName,
		deviation:   deviation,
	}, nil
}

func (c *GenaiClient) Converse(ctx context.Context, history []Turn) (string, error) {
	merged := MergeTurns(history)
	contents := make([]*genai.Content, 0, len(merged))
	for _, t := range merged {
		var role genai.Role = genai.RoleUser
		if t.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(c.plantName, c.deviation()), genai.RoleUser),
		Temperature:       genai.Ptr(float32(c.temperature)),
	})
	if err != nil {
		return "", fmt.Errorf("chat: genai generate: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("chat: no completion returned")
	}
	return text, nil
}

func (c *GenaiClient) Analyze(ctx context.Context, transcript string) (*Analysis, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf(analysisPrompt, transcript), genai.RoleUser),
	}
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("chat: genai analyze: %w", err)
	}
	return parseAnalysis(result.Text())
}
