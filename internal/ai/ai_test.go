package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastBackoff(t *testing.T) {
	t.Helper()
	old := backoffBase
	backoffBase = time.Millisecond
	t.Cleanup(func() { backoffBase = old })
}

func TestGroqRequestShape(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gsk-test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"mixtral-8x7b-32768","choices":[{"message":{"content":"It sums column A."}}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`))
	}))
	defer server.Close()

	p := NewGroqProvider("gsk-test", "").WithEndpoint(server.URL)
	if p.Name() != "groq" {
		t.Errorf("name = %q", p.Name())
	}

	res, err := Complete(context.Background(), p, "VBA Code: Sub A() End Sub", InferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "It sums column A." {
		t.Errorf("content = %q", res.Content)
	}
	if res.InputTokens != 12 || res.OutputTokens != 5 {
		t.Errorf("usage = %d/%d", res.InputTokens, res.OutputTokens)
	}
	if got.Model != defaultGroqModel {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestOpenAIRetriesOnRateLimit(t *testing.T) {
	fastBackoff(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("sk-test", "").WithEndpoint(server.URL)
	res, err := Complete(context.Background(), p, "hi", InferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "ok" {
		t.Errorf("content = %q", res.Content)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestOpenAIGivesUpAfterRetries(t *testing.T) {
	fastBackoff(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewOpenAIProvider("sk-test", "").WithEndpoint(server.URL)
	_, err := Complete(context.Background(), p, "hi", InferOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != maxRetries {
		t.Errorf("expected %d calls, got %d", maxRetries, calls)
	}
}

func TestOpenAIClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid API Key"}}`))
	}))
	defer server.Close()

	p := NewGroqProvider("bad", "").WithEndpoint(server.URL)
	_, err := Complete(context.Background(), p, "hi", InferOptions{})
	if err == nil || !strings.Contains(err.Error(), "Invalid API Key") {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestAnthropicInfer(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "ant-test" {
			t.Errorf("missing api key header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"model":"claude","content":[{"text":"part one "},{"text":"part two"}],"usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider("ant-test", "").WithEndpoint(server.URL)
	res, err := p.Infer(context.Background(), "be brief", []Message{{Role: "user", Content: "hi"}}, InferOptions{MaxTokens: 100})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "part one part two" {
		t.Errorf("content = %q", res.Content)
	}
	if got.System != "be brief" || got.MaxTokens != 100 {
		t.Errorf("request = %+v", got)
	}
}

func TestAnthropicAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider("x", "").WithEndpoint(server.URL)
	_, err := Complete(context.Background(), p, "hi", InferOptions{})
	if err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOllamaInfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		w.Write([]byte(`{"message":{"content":"local answer"},"eval_count":7}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL+"/", "")
	res, err := Complete(context.Background(), p, "hi", InferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "local answer" || res.Model != defaultOllamaModel || res.OutputTokens != 7 {
		t.Errorf("result = %+v", res)
	}
}

func TestNewProvider(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk")
	p, err := NewProvider("Groq", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "groq" {
		t.Errorf("name = %q", p.Name())
	}

	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewProvider("openai", ""); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}

	if _, err := NewProvider("ollama", ""); err != nil {
		t.Errorf("ollama needs no key: %v", err)
	}

	if _, err := NewProvider("nope", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestChunkTextSmall(t *testing.T) {
	chunks := ChunkText("Sub A() End Sub", ChunkOptions{})
	if len(chunks) != 1 || chunks[0] != "Sub A() End Sub" {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestChunkTextBreaksAtEndSub(t *testing.T) {
	sub := "Sub Work() x = x + 1 End Sub "
	text := strings.Repeat(sub, 20)
	chunks := ChunkText(text, ChunkOptions{MaxChunkSize: 100, Overlap: -1})
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d has %d chars", i, len(c))
		}
		if i < len(chunks)-1 && !strings.HasSuffix(c, "End Sub ") {
			t.Errorf("chunk %d does not end at a subroutine boundary: %q", i, c)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks without overlap should reassemble the input")
	}
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 50)
	chunks := ChunkText(text, ChunkOptions{MaxChunkSize: 100, Overlap: 10})
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		if !strings.HasPrefix(chunks[i], prev[len(prev)-10:]) {
			t.Errorf("chunk %d does not overlap the previous one", i)
		}
	}
}
