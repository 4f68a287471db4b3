package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/metrics"
	"github.com/shepherdwind/bean-talk/internal/service"
)

type fakeClient struct {
	err      error
	reply    string
	prompts  []string
	failures int
	mu       sync.Mutex
}

func (f *fakeClient) Provider() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, _, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.failures > 0 {
		f.failures--
		return "", errors.New("temporary outage")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

const threeLines = "1. Primary Category: Expenses:Shopping\n" +
	"2. Alternative Category: Expenses:Home\n" +
	"3. Suggested New Category: Expenses:Shopping:Online"

func newTestSuggester(client Client) *Suggester {
	return NewSuggester(client, Config{RetryDelay: time.Millisecond, RateLimit: 600}, metrics.New())
}

func threeLinesSuggestion() service.Suggestion {
	return service.Suggestion{
		Primary:     "Expenses:Shopping",
		Alternative: "Expenses:Home",
		Suggested:   "Expenses:Shopping:Online",
	}
}

func TestSuggester_SuggestCategories(t *testing.T) {
	client := &fakeClient{reply: threeLines}
	s := newTestSuggester(client)
	defer s.Close()

	categories := []string{"Expenses:Shopping", "Expenses:Home"}
	got, err := s.SuggestCategories(context.Background(), "ACME", "online order", categories)
	require.NoError(t, err)
	assert.Equal(t, "Expenses:Shopping", got.Primary)
	assert.Equal(t, "Expenses:Home", got.Alternative)
	assert.Equal(t, "Expenses:Shopping:Online", got.Suggested)

	require.Equal(t, 1, client.calls())
	prompt := client.prompts[0]
	assert.Contains(t, prompt, "Merchant Name: ACME")
	assert.Contains(t, prompt, "Additional Information: online order")
	assert.Contains(t, prompt, "Expenses:Shopping\nExpenses:Home\n")

	_, err = s.SuggestCategories(context.Background(), "acme", "Online Order", categories)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls(), "second request should be served from cache")
}

func TestSuggester_RetriesTransientErrors(t *testing.T) {
	client := &fakeClient{reply: threeLines, failures: 2}
	s := newTestSuggester(client)
	defer s.Close()

	got, err := s.SuggestCategories(context.Background(), "ACME", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Expenses:Shopping", got.Primary)
	assert.Equal(t, 3, client.calls())
}

func TestSuggester_UnparseableIsNotRetried(t *testing.T) {
	client := &fakeClient{reply: "   "}
	s := newTestSuggester(client)
	defer s.Close()

	_, err := s.SuggestCategories(context.Background(), "ACME", "", nil)
	require.ErrorIs(t, err, ErrUnparseableResponse)
	assert.Equal(t, 1, client.calls())
}

func TestSuggester_OpenBreakerIsUserError(t *testing.T) {
	client := &fakeClient{err: errors.New("down")}
	s := newTestSuggester(client)
	defer s.Close()

	// Two requests with three attempts each trip the breaker.
	for i := 0; i < 2; i++ {
		_, err := s.SuggestCategories(context.Background(), "ACME", "", nil)
		require.Error(t, err)
	}
	before := client.calls()

	_, err := s.SuggestCategories(context.Background(), "ACME", "", nil)
	require.Error(t, err)

	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.UserMessage, "temporarily unavailable")
	assert.Equal(t, before, client.calls())
}

func TestSuggestionCache_Expiry(t *testing.T) {
	cache := newSuggestionCache(time.Minute)
	defer cache.Close()

	now := time.Date(2025, 4, 18, 13, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	key := cacheKey("ACME", "", []string{"Expenses:Food"})
	cache.set(key, threeLinesSuggestion())
	_, ok := cache.get(key)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.get(key)
	assert.False(t, ok)

	cache.evictExpired()
	assert.Equal(t, 0, cache.size())
	assert.NotEqual(t, key, cacheKey("ACME", "", []string{"Expenses:Home"}))
}

func TestRateLimiter_Reserve(t *testing.T) {
	now := time.Date(2024, 4, 18, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter("openai", 2)
	rl.now = func() time.Time { return now }
	rl.last = now

	assert.Zero(t, rl.reserve())
	assert.Zero(t, rl.reserve())
	assert.Equal(t, 30*time.Second, rl.reserve(), "third call waits for one token")
	assert.Equal(t, time.Minute, rl.reserve(), "fourth call queues behind the third")

	now = now.Add(10 * time.Minute)
	assert.Zero(t, rl.reserve(), "balance refills up to capacity")
	assert.Zero(t, rl.reserve())
	assert.Equal(t, 30*time.Second, rl.reserve())
}

func TestRateLimiter_WaitCanceled(t *testing.T) {
	rl := newRateLimiter("anthropic", 1)

	require.NoError(t, rl.wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := rl.wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "anthropic")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Greater(t, rl.tokens, -0.5, "canceled reservation is returned")
}
