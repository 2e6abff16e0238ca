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

const defaultOllamaModel = "llama3.1"

// OllamaProvider calls a local Ollama server.
type OllamaProvider struct {
	host   string
	model  string
	client *http.Client
}

// NewOllamaProvider creates an Ollama backend for the server at host.
func NewOllamaProvider(host, model string) *OllamaProvider {
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		host:   strings.TrimSuffix(host, "/"),
		model:  model,
		client: &http.Client{Timeout: 300 * time.Second},
	}
}

// Name returns the provider identifier.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// Infer sends the conversation to Ollama's chat endpoint without streaming.
func (p *OllamaProvider) Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error) {
	reqBody := ollamaRequest{
		Model:   p.model,
		Options: ollamaOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens},
	}
	if opts.Model != "" {
		reqBody.Model = opts.Model
	}
	if system != "" {
		reqBody.Messages = append(reqBody.Messages, ollamaMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, ollamaMessage(m))
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	return withRetry(ctx, func() (*InferResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("could not create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("could not connect to Ollama at %s, is it running? Start it with 'ollama serve'", p.host)
		}
		status := resp.StatusCode
		respBody, err := readResponse(resp, "Ollama")
		if err != nil {
			return nil, err
		}

		var apiResp ollamaResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("could not parse response: %w", err)
		}
		if apiResp.Error != "" {
			return nil, fmt.Errorf("Ollama error: %s", apiResp.Error)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("Ollama returned status %d: %s", status, string(respBody))
		}

		model := apiResp.Model
		if model == "" {
			model = reqBody.Model
		}
		return &InferResult{
			Content:      apiResp.Message.Content,
			Model:        model,
			InputTokens:  apiResp.PromptEvalCount,
			OutputTokens: apiResp.EvalCount,
		}, nil
	})
}
