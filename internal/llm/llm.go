// Package llm talks to chat-completion backends used for scoring and report
// writing.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrUnavailable is returned by Select when no backend answers.
var ErrUnavailable = errors.New("no LLM provider available")

// Provider generates a completion for a single user prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured(ctx context.Context) bool
}

// Options selects and configures a provider.
type Options struct {
	Provider      string // "ollama" or "openai"
	Model         string
	OllamaURL     string
	OpenAIModel   string
	OpenAIBaseURL string
	APIKeyEnv     string
	Timeout       time.Duration
}

// Select returns the configured provider, falling back from Ollama to
// OpenAI when the local model is not reachable.
func Select(ctx context.Context, opts Options) (Provider, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	if strings.EqualFold(opts.Provider, "ollama") {
		p := NewOllamaProvider(opts.Model, opts.OllamaURL, timeout)
		if p.IsConfigured(ctx) {
			log.Printf("Using Ollama with model: %s", opts.Model)
			return p, nil
		}
		log.Println("Ollama not available, trying OpenAI fallback...")
	}

	p := NewOpenAIProvider(opts.OpenAIModel, os.Getenv(opts.APIKeyEnv), timeout)
	if opts.OpenAIBaseURL != "" {
		p.BaseURL = strings.TrimRight(opts.OpenAIBaseURL, "/")
	}
	if p.IsConfigured(ctx) {
		log.Printf("Using OpenAI with model: %s", p.Model)
		return p, nil
	}
	return nil, fmt.Errorf("%w: start Ollama or set %s", ErrUnavailable, opts.APIKeyEnv)
}

// OllamaProvider calls a local Ollama server.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(model, baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// IsConfigured reports whether Ollama is running and has the model pulled.
func (o *OllamaProvider) IsConfigured(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := doJSON(ctx, o.client, http.MethodGet, o.BaseURL+"/api/tags", nil, nil, &tags); err != nil {
		return false
	}

	base := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range tags.Models {
		if strings.Contains(m.Name, base) {
			return true
		}
	}
	log.Printf("Ollama model %q not found", o.Model)
	return false
}

// Generate sends prompt to /api/chat.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := map[string]any{
		"model":    o.Model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
		"stream":   false,
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": 0.3,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := doJSON(ctx, o.client, http.MethodPost, o.BaseURL+"/api/chat", nil, body, &result); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return result.Message.Content, nil
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(model, apiKey string, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		Model:   model,
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		client:  &http.Client{Timeout: timeout},
	}
}

// IsConfigured reports whether an API key is set.
func (o *OpenAIProvider) IsConfigured(context.Context) bool {
	return o.APIKey != ""
}

// Generate sends prompt to /chat/completions.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", errors.New("openai: API key not configured")
	}

	body := map[string]any{
		"model":       o.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"max_tokens":  maxTokens,
		"temperature": 0.3,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := doJSON(ctx, o.client, http.MethodPost, o.BaseURL+"/chat/completions", headers, body, &result); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

// doJSON performs one request with an optional JSON body and decodes a JSON
// response into out.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
