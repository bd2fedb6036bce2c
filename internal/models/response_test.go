package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckResponse_AddComponent(t *testing.T) {
	tests := []struct {
		name       string
		initial    string
		components map[string]string
		want       string
	}{
		{
			name:       "all healthy",
			initial:    StatusHealthy,
			components: map[string]string{"api": StatusHealthy, "storage": StatusHealthy},
			want:       StatusHealthy,
		},
		{
			name:       "unhealthy component degrades",
			initial:    StatusHealthy,
			components: map[string]string{"api": StatusHealthy, "storage": StatusUnhealthy},
			want:       StatusDegraded,
		},
		{
			name:       "unhealthy service stays unhealthy",
			initial:    StatusUnhealthy,
			components: map[string]string{"storage": StatusUnhealthy},
			want:       StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewHealthCheckResponse(tt.initial)
			for name, status := range tt.components {
				resp.AddComponent(name, status, "")
			}
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Components, len(tt.components))
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("No report found", ErrorCodeNotFound)
	resp.RequestID = "req-1"

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "error", decoded["error"])
	assert.Equal(t, "No report found", decoded["message"])
	assert.Equal(t, "NOT_FOUND", decoded["code"])
	assert.Equal(t, "req-1", decoded["request_id"])
	assert.NotContains(t, decoded, "details")
	assert.False(t, resp.Timestamp.IsZero())
}

func TestSubmitMetricsResponse_JSON(t *testing.T) {
	resp := SubmitMetricsResponse{
		Results: []SubmissionResult{
			{Index: 0, Name: "cpu", Decision: "allowed"},
			{Index: 1, Name: "", Decision: "suppressed", Error: "metric name is required"},
		},
		Allowed: 1,
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"results": [
			{"index": 0, "name": "cpu", "decision": "allowed"},
			{"index": 1, "name": "", "decision": "suppressed", "error": "metric name is required"}
		],
		"allowed": 1,
		"suppressed": 0
	}`, string(data))
}
