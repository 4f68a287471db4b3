package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/metrics"
	"github.com/shepherdwind/bean-talk/internal/service"
)

const systemPrompt = "You are a bookkeeping assistant that files merchants into beancount expense accounts. " +
	"Answer with exactly three lines in the requested format and nothing else."

// Suggester asks a language model for category options for a merchant.
type Suggester struct {
	client      Client
	cache       *suggestionCache
	rateLimiter *rateLimiter
	breaker     *gobreaker.CircuitBreaker
	metrics     *metrics.Metrics
	retry       service.RetryOptions
}

// NewSuggester wraps client with caching, rate limiting, retries and a
// circuit breaker. m may be nil.
func NewSuggester(client Client, cfg Config, m *metrics.Metrics) *Suggester {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	return &Suggester{
		client:      client,
		cache:       newSuggestionCache(cfg.CacheTTL),
		rateLimiter: newRateLimiter(client.Provider(), cfg.RateLimit),
		breaker:     newCircuitBreaker("llm-" + client.Provider()),
		metrics:     m,
		retry: service.RetryOptions{
			MaxAttempts:  maxRetries,
			InitialDelay: retryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// SuggestCategories returns a primary, an alternative and a new category for
// merchant, choosing from categories where possible.
func (s *Suggester) SuggestCategories(ctx context.Context, merchant, hint string, categories []string) (*service.Suggestion, error) {
	key := cacheKey(merchant, hint, categories)
	if cached, ok := s.cache.get(key); ok {
		slog.Debug("Using cached suggestion", "merchant", merchant)
		return &cached, nil
	}

	prompt := buildPrompt(merchant, hint, categories)

	var suggestion *service.Suggestion
	err := common.WithRetry(ctx, "suggest categories", s.retry, func(attempt int) error {
		if err := s.rateLimiter.wait(ctx); err != nil {
			return common.Permanent(err)
		}

		out, err := s.breaker.Execute(func() (any, error) {
			return s.client.Complete(ctx, systemPrompt, prompt)
		})
		s.metrics.IncLLMRequest(s.client.Provider(), err)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return common.Permanent(err)
			}
			return err
		}

		parsed, parseErr := parseSuggestion(out.(string))
		if parseErr != nil {
			return common.Permanent(parseErr)
		}
		suggestion = parsed
		slog.Debug("Suggestion received", "merchant", merchant, "attempt", attempt)
		return nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, common.NewUserError("Category suggestions are temporarily unavailable, please try again later.", err)
		}
		return nil, fmt.Errorf("failed to suggest categories for %q: %w", merchant, err)
	}

	s.cache.set(key, *suggestion)
	return suggestion, nil
}

// Close stops the cache janitor.
func (s *Suggester) Close() {
	s.cache.Close()
}

func buildPrompt(merchant, hint string, categories []string) string {
	var b strings.Builder
	b.WriteString("Please help categorize this merchant based on the following information:\n")
	fmt.Fprintf(&b, "Merchant Name: %s\n", merchant)
	fmt.Fprintf(&b, "Additional Information: %s\n\n", hint)
	b.WriteString("Available categories are:\n")
	for _, c := range categories {
		b.WriteString(c)
		b.WriteByte('\n')
	}
	b.WriteString("\nPlease provide three category options in the following format:\n")
	b.WriteString("1. Primary Category: (choose the most appropriate category from the list above)\n")
	b.WriteString("2. Alternative Category: (choose another suitable category from the list above)\n")
	b.WriteString("3. Suggested New Category: (suggest a new category if none of the existing ones fit well)\n")
	b.WriteString("Respond in exactly this format, with each option on a new line.")
	return b.String()
}
