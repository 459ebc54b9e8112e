// Package llm provides an OpenAI-compatible chat completion client that can
// return per-token logprobs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// maxTopLogprobs is the largest top_logprobs value OpenAI accepts.
const maxTopLogprobs = 20

// Client is a generic OpenAI-compatible LLM client.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client

	mu    sync.Mutex
	stats Stats
}

// Stats tracks usage across calls.
type Stats struct {
	TotalCalls        int
	TotalInputChars   int
	TotalOutputChars  int
	TotalInputTokens  int // estimated
	TotalOutputTokens int // estimated
	LogprobMisses     int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Logprobs    bool          `json:"logprobs,omitempty"`
	TopLogprobs int           `json:"top_logprobs,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message  chatMessage     `json:"message"`
		Logprobs *choiceLogprobs `json:"logprobs"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type choiceLogprobs struct {
	Content []struct {
		Token       string  `json:"token"`
		Logprob     float64 `json:"logprob"`
		TopLogprobs []struct {
			Token   string  `json:"token"`
			Logprob float64 `json:"logprob"`
		} `json:"top_logprobs"`
	} `json:"content"`
}

// Provider configurations
var providers = map[string]struct {
	baseURL   string
	keyEnvVar string
}{
	"deepseek": {"https://api.deepseek.com/v1", "DEEPSEEK_API_KEY"},
	"openai":   {"https://api.openai.com/v1", "OPENAI_API_KEY"},
	"local":    {"http://localhost:11434/v1", ""},
}

// NewClient creates a client for provider. baseURL overrides the provider's
// endpoint and an empty apiKey is read from the provider's key variable.
func NewClient(provider, model, baseURL, apiKey string) (*Client, error) {
	p, ok := providers[provider]
	if !ok && baseURL == "" {
		return nil, fmt.Errorf("unknown provider: %s (set llm.base_url for custom endpoints)", provider)
	}

	if baseURL == "" {
		baseURL = p.baseURL
	}

	if apiKey == "" && p.keyEnvVar != "" {
		apiKey = os.Getenv(p.keyEnvVar)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found. Set %s environment variable", p.keyEnvVar)
		}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Complete implements port.LLM.
func (c *Client) Complete(ctx context.Context, prompt, systemPrompt string, opts port.CompletionOptions) (port.Completion, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.Logprobs {
		req.Logprobs = true
		req.TopLogprobs = min(max(opts.TopLogprobs, 0), maxTopLogprobs)
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return port.Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return port.Completion{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return port.Completion{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return port.Completion{}, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return port.Completion{}, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if chatResp.Error != nil {
		return port.Completion{}, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return port.Completion{}, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if len(chatResp.Choices) == 0 {
		return port.Completion{}, fmt.Errorf("no response from LLM")
	}

	choice := chatResp.Choices[0]
	completion := port.Completion{Content: choice.Message.Content}
	if opts.Logprobs {
		completion.Logprobs = convertLogprobs(choice.Logprobs)
	}

	c.record(len(prompt)+len(systemPrompt), len(completion.Content), opts.Logprobs && completion.Logprobs == nil)
	return completion, nil
}

// convertLogprobs returns nil when the provider sent no logprobs.
func convertLogprobs(lp *choiceLogprobs) []domain.TokenLogprob {
	if lp == nil || len(lp.Content) == 0 {
		return nil
	}
	out := make([]domain.TokenLogprob, len(lp.Content))
	for i, tok := range lp.Content {
		top := make([]domain.TopLogprob, len(tok.TopLogprobs))
		for j, alt := range tok.TopLogprobs {
			top[j] = domain.TopLogprob{Token: alt.Token, Logprob: alt.Logprob}
		}
		out[i] = domain.TokenLogprob{Token: tok.Token, Logprob: tok.Logprob, TopLogprobs: top}
	}
	return out
}

func (c *Client) record(inputChars, outputChars int, logprobMiss bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TotalCalls++
	c.stats.TotalInputChars += inputChars
	c.stats.TotalOutputChars += outputChars
	// Rough token estimate: ~4 chars per token for English
	c.stats.TotalInputTokens += inputChars / 4
	c.stats.TotalOutputTokens += outputChars / 4
	if logprobMiss {
		c.stats.LogprobMisses++
	}
}

// GetStats returns the current usage statistics.
func (c *Client) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) ModelName() string {
	return c.model
}
