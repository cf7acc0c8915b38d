package builtin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Narcis13/workscript/internal/node/builtin"
)

func TestHTTPRequestSuccess(t *testing.T) {
	var sawAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	}))
	defer server.Close()

	ctx := testContext(map[string]interface{}{"JWT_token": "tok"})
	edges, err := builtin.NewHTTPRequestNode().Execute(ctx, map[string]interface{}{
		"url": server.URL,
	})
	require.NoError(t, err)

	edge, payload := selectOnly(t, edges)
	assert.Equal(t, "success", edge)
	assert.Equal(t, 200, payload["status"])
	body := payload["body"].(map[string]interface{})
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Bearer tok", sawAuth)
}

func TestHTTPRequestRelativeURLUsesBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/nodes" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	ctx := testContext(nil)
	ctx.Env["API_BASE_URL"] = server.URL

	edges, err := builtin.NewHTTPRequestNode().Execute(ctx, map[string]interface{}{
		"url": "/api/v1/nodes",
	})
	require.NoError(t, err)

	edge, payload := selectOnly(t, edges)
	assert.Equal(t, "success", edge)
	assert.Equal(t, 200, payload["status"])
}

func TestHTTPRequestRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`"recovered"`))
	}))
	defer server.Close()

	edges, err := builtin.NewHTTPRequestNode().Execute(testContext(nil), map[string]interface{}{
		"url":         server.URL,
		"maxAttempts": 3,
	})
	require.NoError(t, err)

	edge, payload := selectOnly(t, edges)
	assert.Equal(t, "success", edge)
	assert.Equal(t, "recovered", payload["body"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPRequestErrorEdgeOnTransportFailure(t *testing.T) {
	edges, err := builtin.NewHTTPRequestNode().Execute(testContext(nil), map[string]interface{}{
		"url": "http://127.0.0.1:1/unreachable",
	})
	require.NoError(t, err)

	edge, payload := selectOnly(t, edges)
	assert.Equal(t, "error", edge)
	assert.NotEmpty(t, payload["error"])
}

func TestHTTPRequestRequiresURL(t *testing.T) {
	_, err := builtin.NewHTTPRequestNode().Execute(testContext(nil), map[string]interface{}{})
	assert.Error(t, err)
}
