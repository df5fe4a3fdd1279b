package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Generation waits on the model producing a full completion, so it gets a
// longer timeout than the embedding calls.
const requestTimeout = 60 * time.Second

// systemPreamble frames every request. It is constant so that cached answers
// stay comparable across requests.
const systemPreamble = "You are a helpful assistant. Answer the question using the provided context."

// Config holds the settings for an OpenAI-compatible chat completions
// endpoint.
type Config struct {
	APIBase string
	APIKey  string
	Model   string
}

// OpenAI implements Client against the OpenAI chat completions endpoint or
// any API-compatible provider. Safe for concurrent use.
type OpenAI struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAI creates a client for cfg's endpoint.
func NewOpenAI(cfg Config) *OpenAI {
	return &OpenAI{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Generate sends the prompt and context as a single user message under the
// fixed system preamble and returns the first completion.
func (c *OpenAI) Generate(ctx context.Context, prompt, docContext string) (string, error) {
	input := prompt + "\n\nProvided context:\n" + docContext

	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPreamble},
			{Role: "user", Content: input},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return apiResp.Choices[0].Message.Content, nil
}
