package speech

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

// ErrSynthesis is returned when the TTS service answers with an error
// payload or a non-success status.
var ErrSynthesis = errors.New("speech synthesis failed")

// visemesHeader carries the JSON-encoded viseme timeline.
const visemesHeader = "Visemes"

// HTTPSynthesizer requests audio from a TTS service with
// GET {url}?text=...&voice=....
type HTTPSynthesizer struct {
	httpClient *http.Client
	url        string
	voice      string
	log        *logger.Logger
}

func NewHTTPSynthesizer(ttsURL, voice string, timeout time.Duration, log *logger.Logger) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		httpClient: &http.Client{Timeout: timeout},
		url:        ttsURL,
		voice:      voice,
		log:        logger.OrNop(log),
	}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) (*Clip, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("parse tts url: %w", err)
	}
	q := u.Query()
	q.Set("text", strings.TrimSpace(text))
	if s.voice != "" {
		q.Set("voice", s.voice)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	// The service reports failures as JSON, sometimes with a 200.
	if strings.Contains(contentType, "application/json") || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrSynthesis, resp.StatusCode, errorMessage(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrSynthesis)
	}

	return NewClip(body, contentType, s.visemes(resp.Header.Get(visemesHeader)), nil), nil
}

// visemes decodes the header, treating anything malformed as no visemes.
func (s *HTTPSynthesizer) visemes(header string) []Viseme {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	var out []Viseme
	if err := sonic.UnmarshalString(header, &out); err != nil {
		s.log.Debug("ignoring malformed visemes header", "error", err)
		return nil
	}
	return out
}

func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
