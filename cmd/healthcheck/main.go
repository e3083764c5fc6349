// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the keygate health endpoint answers HTTP 200
// with a status other than "unhealthy", and 1 otherwise. Compile with
// CGO_ENABLED=0 for a fully static binary.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://localhost:8080/health"

func main() {
	url := os.Getenv("KEYGATE_HEALTH_URL")
	if url == "" {
		url = defaultURL
	}
	if !healthy(&http.Client{Timeout: 3 * time.Second}, url) {
		os.Exit(1)
	}
}

func healthy(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return true
	}
	return body.Status != "unhealthy"
}
