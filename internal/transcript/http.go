package transcript

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// HTTPStore talks to a remote history service exposing GET and POST on
// /api/history.
type HTTPStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPStore targets the service at baseURL.
func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type historyResponse struct {
	History []Turn `json:"history"`
}

type appendRequest struct {
	SessionKey string `json:"sessionKey"`
	User       string `json:"user"`
	Assistant  string `json:"assistant"`
}

type appendResponse struct {
	OK   bool `json:"ok"`
	Turn Turn `json:"turn"`
}

func (s *HTTPStore) Load(ctx context.Context, key string) ([]Turn, error) {
	if key == "" {
		return nil, ErrMissingFields
	}
	u := s.baseURL + "/api/history?sessionKey=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get history: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out historyResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if out.History == nil {
		out.History = []Turn{}
	}
	sortByTS(out.History)
	return out.History, nil
}

func (s *HTTPStore) Append(ctx context.Context, key, user, assistant string) (Turn, error) {
	if err := validate(key, user, assistant); err != nil {
		return Turn{}, err
	}
	payload, err := sonic.Marshal(appendRequest{SessionKey: key, User: user, Assistant: assistant})
	if err != nil {
		return Turn{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/history", bytes.NewReader(payload))
	if err != nil {
		return Turn{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Turn{}, fmt.Errorf("post history: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Turn{}, fmt.Errorf("post history: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out appendResponse
	if err := sonic.Unmarshal(body, &out); err != nil || out.Turn.TS == 0 {
		// Older services reply with {"ok":true} only.
		return Turn{User: user, Assistant: assistant, TS: time.Now().UnixMilli()}, nil
	}
	return out.Turn, nil
}
