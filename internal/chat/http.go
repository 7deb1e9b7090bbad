package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"florafi/internal/logging"
)

// generateContent wire shapes. Only the fields this client sends and reads.

type apiRequest struct {
	Contents          []apiContent  `json:"contents"`
	SystemInstruction *apiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  apiGeneration `json:"generationConfig"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text string `json:"text"`
}

type apiGeneration struct {
	Temperature float64 `json:"temperature"`
}

type apiResponse struct {
	Candidates []struct {
		Content apiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPClient is the default backend: a direct generateContent call with
// bounded retries.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxRetries  int
	plantName   string
	deviation   func() float64
	httpClient  *http.Client

	// sleep is swapped in tests so retry backoff runs without waiting.
	sleep func(time.Duration)
}

// NewHTTPClient creates the HTTP backend with defaults filled in.
func NewHTTPClient(cfg Config) *HTTPClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.9
	}
	deviation := cfg.Deviation
	if deviation == nil {
		deviation = func() float64 { return 0 }
	}
	return &HTTPClient{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxRetries:  maxRetries,
		plantName:   cfg.PlantName,
		deviation:   deviation,
		httpClient:  &http.Client{Timeout: timeout},
		sleep:       time.Sleep,
	}
}

// Converse sends the merged history and returns the model's reply.
func (c *HTTPClient) Converse(ctx context.Context, history []Turn) (string, error) {
	return c.generate(ctx, systemPrompt(c.plantName, c.deviation()), MergeTurns(history))
}

// Analyze asks the model for listing metadata over the transcript.
func (c *HTTPClient) Analyze(ctx context.Context, transcript string) (*Analysis, error) {
	raw, err := c.generate(ctx, "", []Turn{{Role: RoleUser, Text: fmt.Sprintf(analysisPrompt, transcript)}})
	if err != nil {
		return nil, err
	}
	return parseAnalysis(raw)
}

func (c *HTTPClient) generate(ctx context.Context, system string, turns []Turn) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.ChatDebug("generate: model=%s turns=%d", c.model, len(turns))

	contents := make([]apiContent, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, apiContent{Role: t.Role, Parts: []apiPart{{Text: t.Text}}})
	}
	reqBody := apiRequest{
		Contents:         contents,
		GenerationConfig: apiGeneration{Temperature: c.temperature},
	}
	if system != "" {
		reqBody.SystemInstruction = &apiContent{Parts: []apiPart{{Text: system}}}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff between transient failures.
			c.sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("chat: marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("chat: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return "", fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, strings.TrimSpace(string(body)))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			logging.ChatWarn("transient failure (attempt %d/%d): %v", attempt+1, c.maxRetries+1, lastErr)
			continue
		case resp.StatusCode != http.StatusOK:
			return "", fmt.Errorf("chat: API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return "", fmt.Errorf("chat: parse response: %w", err)
		}
		if apiResp.Error != nil {
			return "", fmt.Errorf("chat: API error: %s", apiResp.Error.Message)
		}
		if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("chat: no completion returned")
		}

		var result strings.Builder
		for _, part := range apiResp.Candidates[0].Content.Parts {
			result.WriteString(part.Text)
		}
		reply := strings.TrimSpace(result.String())
		logging.Chat("generate: completed in %v reply_len=%d", time.Since(start), len(reply))
		return reply, nil
	}

	logging.ChatError("generate: retries exhausted after %v: %v", time.Since(start), lastErr)
	return "", fmt.Errorf("chat: retries exhausted: %w", lastErr)
}
