package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIURL       = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion   = "2023-06-01"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
)

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewAnthropicProvider creates an Anthropic backend.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicProvider{
		apiKey:   apiKey,
		model:    model,
		endpoint: anthropicAPIURL,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// WithEndpoint points the provider at a different Messages API URL.
func (p *AnthropicProvider) WithEndpoint(url string) *AnthropicProvider {
	p.endpoint = url
	return p
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Infer sends the conversation to Claude, retrying on rate limits and
// server errors.
func (p *AnthropicProvider) Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error) {
	reqBody := anthropicRequest{
		Model:       p.model,
		MaxTokens:   4096,
		System:      system,
		Temperature: opts.Temperature,
	}
	if opts.Model != "" {
		reqBody.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = opts.MaxTokens
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, anthropicMessage(m))
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}
	return withRetry(ctx, func() (*InferResult, error) {
		return p.doRequest(ctx, body)
	})
}

func (p *AnthropicProvider) doRequest(ctx context.Context, body []byte) (*InferResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	respBody, err := readResponse(resp, "Anthropic API")
	if err != nil {
		return nil, err
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("could not parse API response: %w", err)
	}
	if apiResp.Error != nil {
		if apiResp.Error.Type == "authentication_error" {
			return nil, fmt.Errorf("invalid API key, check your ANTHROPIC_API_KEY environment variable")
		}
		return nil, fmt.Errorf("API error (%s): %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return nil, fmt.Errorf("API returned empty response")
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		text.WriteString(block.Text)
	}
	return &InferResult{
		Content:      text.String(),
		Model:        apiResp.Model,
		InputTokens:  apiResp.Usage.InputTokens,
		OutputTokens: apiResp.Usage.OutputTokens,
	}, nil
}
