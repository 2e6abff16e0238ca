package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	openaiAPIURL     = "https://api.openai.com/v1/chat/completions"
	defaultGPTModel  = "gpt-4o"
	groqAPIURL       = "https://api.groq.com/openai/v1/chat/completions"
	defaultGroqModel = "mixtral-8x7b-32768"
)

// OpenAIProvider calls an OpenAI-compatible Chat Completions endpoint. Groq
// serves the same API, so both backends share this type.
type OpenAIProvider struct {
	name     string
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAIProvider creates an OpenAI backend.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultGPTModel
	}
	return &OpenAIProvider{
		name:     "openai",
		apiKey:   apiKey,
		model:    model,
		endpoint: openaiAPIURL,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// NewGroqProvider creates a Groq backend.
func NewGroqProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultGroqModel
	}
	return &OpenAIProvider{
		name:     "groq",
		apiKey:   apiKey,
		model:    model,
		endpoint: groqAPIURL,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// WithEndpoint points the provider at a different chat completions URL.
func (p *OpenAIProvider) WithEndpoint(url string) *OpenAIProvider {
	p.endpoint = url
	return p
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Infer sends the conversation and returns the first choice.
func (p *OpenAIProvider) Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error) {
	reqBody := openaiRequest{
		Model:       p.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.Model != "" {
		reqBody.Model = opts.Model
	}
	if system != "" {
		reqBody.Messages = append(reqBody.Messages, openaiMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, openaiMessage(m))
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}
	return withRetry(ctx, func() (*InferResult, error) {
		return p.doRequest(ctx, body)
	})
}

func (p *OpenAIProvider) doRequest(ctx context.Context, body []byte) (*InferResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	status := resp.StatusCode
	respBody, err := readResponse(resp, p.name)
	if err != nil {
		return nil, err
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if status != http.StatusOK {
			return nil, fmt.Errorf("%s returned status %d: %s", p.name, status, string(respBody))
		}
		return nil, fmt.Errorf("could not parse response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("%s API error: %s", p.name, apiResp.Error.Message)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", p.name, status, string(respBody))
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	return &InferResult{
		Content:      apiResp.Choices[0].Message.Content,
		Model:        apiResp.Model,
		InputTokens:  apiResp.Usage.PromptTokens,
		OutputTokens: apiResp.Usage.CompletionTokens,
	}, nil
}
