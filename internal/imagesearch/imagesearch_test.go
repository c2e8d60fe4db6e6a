package imagesearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bing_images", r.URL.Query().Get("engine"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "leaf chlorophyll education diagram", r.URL.Query().Get("q"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient("key", srv.URL, time.Second, nil)
}

func TestSearch_FirstResult(t *testing.T) {
	c := serve(t, http.StatusOK, `{"images_results":[
		{"original":"https://img.example/leaf.png","thumbnail":"https://img.example/leaf_t.png","title":"Leaf","link":"https://example.org/leaf"},
		{"original":"https://img.example/other.png"}
	]}`)
	img, err := c.Search(context.Background(), "leaf chlorophyll")
	require.NoError(t, err)
	assert.Equal(t, &Image{
		URL:    "https://img.example/leaf.png",
		Thumb:  "https://img.example/leaf_t.png",
		Title:  "Leaf",
		Source: "https://example.org/leaf",
	}, img)
}

func TestSearch_Fallbacks(t *testing.T) {
	c := serve(t, http.StatusOK, `{"images_results":[{"thumbnail":"https://img.example/t.png","source":"example.org"}]}`)
	img, err := c.Search(context.Background(), "leaf chlorophyll")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/t.png", img.URL)
	assert.Equal(t, "https://img.example/t.png", img.Thumb)
	assert.Equal(t, "example.org", img.Title)
	assert.Equal(t, "example.org", img.Source)
}

func TestSearch_NoResult(t *testing.T) {
	for name, body := range map[string]string{
		"empty list": `{"images_results":[]}`,
		"missing":    `{}`,
		"malformed":  `<html>`,
	} {
		t.Run(name, func(t *testing.T) {
			img, err := serve(t, http.StatusOK, body).Search(context.Background(), "leaf chlorophyll")
			assert.NoError(t, err)
			assert.Nil(t, img)
		})
	}
}

func TestSearch_Errors(t *testing.T) {
	_, err := serve(t, http.StatusTooManyRequests, "slow down").Search(context.Background(), "leaf chlorophyll")
	assert.ErrorContains(t, err, "429")

	_, err = NewClient("", "", time.Second, nil).Search(context.Background(), "leaf")
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = NewClient("key", "", time.Second, nil).Search(context.Background(), "  ")
	assert.Error(t, err)
}
