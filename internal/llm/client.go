// Package llm suggests expense categories for merchants using a language model.
// It supports OpenAI and Anthropic, with retry logic, rate limiting, a circuit
// breaker and response caching.
package llm

import (
	"context"
	"net/http"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Provider() string
}

// Config holds provider settings and the knobs of the suggester around it.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
