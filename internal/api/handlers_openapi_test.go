package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestServeOpenAPISpec(t *testing.T) {
	h := NewHandlers(Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/openapi.yaml", nil)
	rec := httptest.NewRecorder()
	h.ServeOpenAPISpec(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "openapi: 3.0.3"))
}

// Every routed API path must be documented.
func TestOpenAPISpec_DocumentsRoutes(t *testing.T) {
	var doc struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(openAPISpec, &doc))

	tests := []struct {
		path   string
		method string
	}{
		{"/health", "get"},
		{"/api/v1/health", "get"},
		{"/api/v1/limiters", "get"},
		{"/api/v1/reports", "get"},
		{"/api/v1/reports/latest", "get"},
		{"/api/v1/reports/collect", "post"},
		{"/api/v1/metrics", "post"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			ops, ok := doc.Paths[tt.path]
			require.True(t, ok, "path %s is not documented", tt.path)
			assert.Contains(t, ops, tt.method)
		})
	}
}

func TestServeSwaggerUI(t *testing.T) {
	router := SetupRoutes(NewHandlers(Dependencies{}))

	for _, path := range []string{"/api/v1/docs", "/api/v1/openapi.yaml"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/docs", nil))
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "swagger-ui")
	assert.Contains(t, rec.Body.String(), "/api/v1/openapi.yaml")
	assert.Contains(t, rec.Body.String(), "Metric Governor API")
}
