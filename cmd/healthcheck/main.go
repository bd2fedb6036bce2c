// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the /health endpoint reports a healthy or
// degraded governor, and 1 otherwise. The port follows METRICGOVERNOR_PORT.
// Compile with CGO_ENABLED=0 for a fully static binary.
package main

import (
	"net/http"
	"os"
	"time"
)

func healthURL() string {
	port := os.Getenv("METRICGOVERNOR_PORT")
	if port == "" {
		port = "8080"
	}
	return "http://localhost:" + port + "/health"
}

func main() {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(healthURL())
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
