package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiError is the error body every endpoint returns
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newAPIClient() *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")+"/api").
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "orkut-cli")
	if authToken != "" {
		client.SetAuthToken(authToken)
	}
	return client
}

func requireToken() error {
	if authToken == "" {
		fmt.Fprintf(os.Stderr, "Please set your auth token: export ORKUT_TOKEN=<your-token>\n")
		return fmt.Errorf("ORKUT_TOKEN environment variable not set")
	}
	return nil
}

// call sends the request and decodes a 2xx body into a generic map
func call(req *resty.Request, method, path string) (map[string]interface{}, error) {
	var result map[string]interface{}
	resp, err := req.
		SetResult(&result).
		SetError(&apiError{}).
		Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
			return nil, fmt.Errorf("API error: %s", e.Message)
		}
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode())
	}
	return result, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
