// Package imagesearch finds one illustrative image for a query through
// SerpAPI's Bing Images engine.
package imagesearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/vidyadost/vidyadost/internal/logger"
)

// DefaultBaseURL is SerpAPI's search endpoint.
const DefaultBaseURL = "https://serpapi.com/search.json"

// ErrMissingKey is returned when no SerpAPI key is configured.
var ErrMissingKey = errors.New("imagesearch: missing SerpAPI key")

// Image is the best result for a query.
type Image struct {
	URL    string `json:"url"`
	Thumb  string `json:"thumb"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// Searcher finds a single image. A nil image with a nil error means
// nothing was found.
type Searcher interface {
	Search(ctx context.Context, query string) (*Image, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

func NewClient(apiKey, baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		log:        logger.OrNop(log),
	}
}

type serpResult struct {
	Original  string `json:"original"`
	Thumbnail string `json:"thumbnail"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	Link      string `json:"link"`
}

// Search returns the first image result for query. A body that cannot be
// decoded is treated as no result.
func (c *Client) Search(ctx context.Context, query string) (*Image, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("imagesearch: empty query")
	}
	if c.apiKey == "" {
		return nil, ErrMissingKey
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("engine", "bing_images")
	q.Set("q", query+" education diagram")
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.log.Debug("image search", "query", query)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image search response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image search status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var payload struct {
		ImagesResults []serpResult `json:"images_results"`
	}
	if err := sonic.Unmarshal(body, &payload); err != nil {
		c.log.Warn("malformed image search response", "error", err)
		return nil, nil
	}
	if len(payload.ImagesResults) == 0 {
		c.log.Info("image search found nothing", "query", query)
		return nil, nil
	}

	first := payload.ImagesResults[0]
	img := &Image{
		URL:    firstNonEmpty(first.Original, first.Thumbnail),
		Thumb:  firstNonEmpty(first.Thumbnail, first.Original),
		Title:  firstNonEmpty(first.Title, first.Source, query),
		Source: firstNonEmpty(first.Link, first.Source),
	}
	if img.URL == "" {
		return nil, nil
	}
	return img, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
