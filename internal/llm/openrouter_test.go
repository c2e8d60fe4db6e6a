package llm

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenRouterProvider(t *testing.T) {
	p, err := NewOpenRouterProvider(OpenRouterConfig{
		APIKey: "sk-or-test",
		Model:  "meta-llama/llama-3-8b",
	})
	require.NoError(t, err)
	assert.Equal(t, "meta-llama/llama-3-8b", p.ModelID())

	var _ Provider = p

	_, err = NewOpenRouterProvider(OpenRouterConfig{Model: "meta-llama/llama-3-8b"})
	assert.Error(t, err)
}

func TestAttributionTransport(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	client := &http.Client{Transport: attributionTransport{base: http.DefaultTransport}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "VidyaDost", got.Get("X-Title"))
	assert.Equal(t, openRouterReferer, got.Get("HTTP-Referer"))
	assert.Empty(t, req.Header.Get("X-Title"))
}
