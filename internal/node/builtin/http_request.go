package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Narcis13/workscript/internal/node"
)

const defaultAPIBaseURL = "http://localhost:3013"

// HTTPRequestNode performs an HTTP call. Relative URLs are resolved against
// API_BASE_URL so workflows can call back into the embedding's own API.
type HTTPRequestNode struct {
	client *http.Client
}

// NewHTTPRequestNode creates an http-request node.
func NewHTTPRequestNode() *HTTPRequestNode {
	return &HTTPRequestNode{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Metadata returns node metadata.
func (n *HTTPRequestNode) Metadata() node.Metadata {
	return node.Metadata{
		ID:          "http-request",
		Name:        "HTTP Request",
		Version:     "1.0.0",
		Description: "Perform an HTTP request with bounded retry",
		Inputs:      []string{"method", "url", "headers", "body", "maxAttempts"},
		Outputs:     []string{"success", "error"},
		AIHints: &node.AIHints{
			Purpose:       "Call HTTP APIs, including the runtime's own API",
			WhenToUse:     "Relative urls resolve against API_BASE_URL",
			ExpectedEdges: []string{"success", "error"},
			ExampleConfig: map[string]interface{}{"method": "GET", "url": "/api/v1/nodes"},
			GetFromState:  []string{"JWT_token"},
		},
	}
}

// Execute performs the request. Transport errors and 5xx responses surface
// as an error edge so workflows can route recovery; other statuses go out on
// success. Up to maxAttempts tries are made (default 1, a single try), with
// exponential backoff between them.
func (n *HTTPRequestNode) Execute(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
	method := strings.ToUpper(stringConfig(config, "method", "GET"))
	url := stringConfig(config, "url", "")
	if url == "" {
		return nil, fmt.Errorf("http-request requires a url")
	}
	if strings.HasPrefix(url, "/") {
		base := ctx.Env["API_BASE_URL"]
		if base == "" {
			base = defaultAPIBaseURL
		}
		url = strings.TrimSuffix(base, "/") + url
	}

	var bodyBytes []byte
	if body, exists := config["body"]; exists && body != nil {
		switch b := body.(type) {
		case string:
			bodyBytes = []byte(b)
		default:
			var err error
			bodyBytes, err = json.Marshal(b)
			if err != nil {
				return nil, fmt.Errorf("http-request body is not serializable: %w", err)
			}
		}
	}

	attempts := intConfig(config, "maxAttempts", 1)
	cfg := defaultRetryConfig()
	cfg.MaxAttempts = attempts

	var status int
	var respBody []byte
	var respHeaders map[string]string

	doOnce := func() error {
		req, err := http.NewRequestWithContext(ctx.Context, method, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if headers, ok := config["headers"].(map[string]interface{}); ok {
			for k, v := range headers {
				req.Header.Set(k, fmt.Sprintf("%v", v))
			}
		}
		if token, ok := ctx.State.Get("JWT_token"); ok {
			if s, ok := token.(string); ok && s != "" && req.Header.Get("Authorization") == "" {
				req.Header.Set("Authorization", "Bearer "+s)
			}
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		status = resp.StatusCode
		respBody = data
		respHeaders = make(map[string]string, len(resp.Header))
		for k := range resp.Header {
			respHeaders[k] = resp.Header.Get(k)
		}
		if status >= 500 {
			return fmt.Errorf("server returned %d", status)
		}
		return nil
	}

	if reqErr := retry(ctx.Context, cfg, func(_ context.Context, attempt int) error {
		if attempt > 1 {
			ctx.Logger.Warn("retrying request", "url", url, "attempt", attempt)
		}
		return doOnce()
	}); reqErr != nil {
		return node.Edge("error", map[string]interface{}{
			"error": reqErr.Error(),
			"url":   url,
		}), nil
	}

	var parsed interface{}
	if json.Unmarshal(respBody, &parsed) != nil {
		parsed = string(respBody)
	}

	return node.Edge("success", map[string]interface{}{
		"status":  status,
		"body":    parsed,
		"headers": respHeaders,
	}), nil
}

func init() {
	node.Provide("builtin", func() node.Node { return NewHTTPRequestNode() })
}
