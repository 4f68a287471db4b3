package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveScan(time.Second, nil)
		m.IncTransaction("email", "recorded")
		m.IncPrompt("sent")
		m.IncSelection(true)
		m.SetQueueLength(3)
		m.IncLLMRequest("openai", nil)
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveScan(10*time.Millisecond, nil)
	m.ObserveScan(10*time.Millisecond, errors.New("down"))
	m.IncTransaction("email", "recorded")
	m.IncTransaction("email", "recorded")
	m.IncSelection(false)
	m.SetQueueLength(4)

	assert.InDelta(t, 1, testutil.ToFloat64(m.scans.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.scans.WithLabelValues("error")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.transactions.WithLabelValues("email", "recorded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.selections.WithLabelValues("categorized")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.queueLength), 0)
}

func TestRouter(t *testing.T) {
	m := New()
	m.IncPrompt("sent")
	srv := httptest.NewServer(NewRouter(m))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `beantalk_categorization_prompts_total{outcome="sent"} 1`)
}
