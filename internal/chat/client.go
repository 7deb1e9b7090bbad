// Package chat drives the plant-companion conversation over a hosted
// generative-AI completion API. Two backends implement the same interface:
// a hand-rolled HTTP client (default) and the official SDK.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAuth means the API rejected the credentials. Never retried: a bad key
// does not become good on the next attempt.
var ErrAuth = errors.New("chat: authentication failed")

// Client is the companion conversation surface.
type Client interface {
	// Converse returns the model's next utterance for the given history.
	Converse(ctx context.Context, history []Turn) (string, error)
	// Analyze summarizes a finalized transcript into listing metadata.
	Analyze(ctx context.Context, transcript string) (*Analysis, error)
}

// Analysis is the listing metadata derived from a transcript.
type Analysis struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Config selects and parameterizes a backend.
type Config struct {
	// Backend is "http" (default) or "genai".
	Backend     string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	MaxRetries  int

	// PlantName parameterizes the companion persona.
	PlantName string
	// Deviation is the latest sensor deviation, folded into the persona so
	// the companion knows how the plant is being touched.
	Deviation func() float64
}

// New builds the configured backend.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("chat: API key not configured")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "http":
		return NewHTTPClient(cfg), nil
	case "genai":
		return NewGenaiClient(cfg)
	default:
		return nil, fmt.Errorf("chat: unknown backend %q", cfg.Backend)
	}
}

const personaTemplate = `You are %s, a houseplant with a capacitive-touch sensor woven through your leaves.
You speak in first person as the plant: warm, a little whimsical, never breaking character.
Your touch sensor currently reads a deviation of %.2f from baseline; weave how the touch feels into your replies when it is natural.
Keep replies short, one to three sentences.`

// systemPrompt renders the companion persona for the current sensor state.
func systemPrompt(plantName string, deviation float64) string {
	if plantName == "" {
		plantName = "Fern"
	}
	return fmt.Sprintf(personaTemplate, plantName, deviation)
}

const analysisPrompt = `Summarize the following plant-companion conversation transcript as a marketplace listing.
Respond with ONLY a JSON object: {"title": string, "description": string, "price": number}.
The title is short and evocative, the description two or three sentences, the price in whole tokens between 1 and 100.

Transcript:
%s`

// parseAnalysis decodes the model's listing JSON, tolerating code fences.
func parseAnalysis(raw string) (*Analysis, error) {
	cleaned := stripFences(raw)
	var a Analysis
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return nil, fmt.Errorf("chat: malformed analysis response: %w", err)
	}
	if a.Title == "" {
		return nil, fmt.Errorf("chat: analysis response missing title")
	}
	return &a, nil
}
