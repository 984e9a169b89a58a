package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firerisk-cli/internal/config"
)

var collectedAt = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		StaleAfterHours:      48,
	})

	snap := &MetricsSnapshot{
		RunsTotal:      20,
		RunsComplete:   19,
		RunsFailed:     1,
		FailRate:       0.05,
		LastSuccessAt:  collectedAt.Add(-2 * time.Hour),
		LastOutputRows: 1200,
		LookbackHours:  24,
		CollectedAt:    collectedAt,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		RunsTotal:      10,
		RunsComplete:   6,
		RunsFailed:     4,
		FailRate:       0.4,
		LastSuccessAt:  collectedAt,
		LastOutputRows: 10,
		LookbackHours:  24,
		CollectedAt:    collectedAt,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		RunsTotal:     2,
		RunsFailed:    2,
		FailRate:      1,
		LookbackHours: 24,
		CollectedAt:   collectedAt,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_Stale(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1, StaleAfterHours: 24})

	never := a.Evaluate(&MetricsSnapshot{CollectedAt: collectedAt})
	require.Len(t, never, 1)
	assert.Equal(t, AlertStaleOutput, never[0].Type)
	assert.Contains(t, never[0].Message, "No successful run")

	old := a.Evaluate(&MetricsSnapshot{
		LastSuccessAt:  collectedAt.Add(-30 * time.Hour),
		LastOutputRows: 5,
		CollectedAt:    collectedAt,
	})
	require.Len(t, old, 1)
	assert.Contains(t, old[0].Message, "30h0m0s ago")
}

func TestAlerter_Evaluate_EmptyOutput(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})

	alerts := a.Evaluate(&MetricsSnapshot{
		RunsComplete:  1,
		LastSuccessAt: collectedAt,
		CollectedAt:   collectedAt,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertEmptyOutput, alerts[0].Type)
}

func TestAlerter_Evaluate_OutputDrop(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1, OutputDropThreshold: 0.5})

	alerts := a.Evaluate(&MetricsSnapshot{
		LastSuccessAt:  collectedAt,
		LastOutputRows: 300,
		PrevOutputRows: 1000,
		CollectedAt:    collectedAt,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertOutputDrop, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "70%")
	assert.Contains(t, alerts[0].Message, "1000 -> 300")

	assert.Empty(t, a.Evaluate(&MetricsSnapshot{
		LastSuccessAt:  collectedAt,
		LastOutputRows: 600,
		PrevOutputRows: 1000,
		CollectedAt:    collectedAt,
	}))
}

func TestOutputDrop(t *testing.T) {
	assert.InDelta(t, 0.25, outputDrop(&MetricsSnapshot{PrevOutputRows: 400, LastOutputRows: 300}), 1e-9)
	assert.Zero(t, outputDrop(&MetricsSnapshot{PrevOutputRows: 400, LastOutputRows: 500}))
	assert.Zero(t, outputDrop(&MetricsSnapshot{PrevOutputRows: 0, LastOutputRows: 10}))
	assert.Zero(t, outputDrop(&MetricsSnapshot{PrevOutputRows: 10, LastOutputRows: 0}))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var requests atomic.Int32
	var got webhookPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		requests.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertStaleOutput, Severity: "medium", Message: "test alert 2"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, "firerisk", got.Source)
	require.Len(t, got.Alerts, 2)
	assert.Equal(t, AlertStaleOutput, got.Alerts[1].Type)
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}}))
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}}))
}
