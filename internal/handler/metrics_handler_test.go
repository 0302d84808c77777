package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/service"
)

func TestMetricsHandlerReadyReportsFailingCheck(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"storage": func(context.Context) error { return nil },
		"redis":   func(context.Context) error { return errors.New("connection refused") },
	})
	c, rec := testContext(http.MethodGet, "/ready", nil, "")

	h.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "ok", body.Checks["storage"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestMetricsHandlerReadyWithoutChecks(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), nil)
	c, rec := testContext(http.MethodGet, "/ready", nil, "")

	h.Ready(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsHandlerSummary(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/api/v1/requests", http.StatusOK, 5*time.Millisecond)
	h := NewMetricsHandler(metrics, nil)
	c, rec := testContext(http.MethodGet, "/metrics/summary", nil, "")

	h.Summary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot service.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, uint64(1), snapshot.RequestsTotal)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
	h := NewMetricsHandler(metrics, nil)
	c, rec := testContext(http.MethodGet, "/metrics", nil, "")

	h.Prometheus(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}
