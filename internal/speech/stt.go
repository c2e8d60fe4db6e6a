package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// ErrNoAudio is returned for an empty recording.
var ErrNoAudio = errors.New("speech: no audio provided")

// Transcript is a recognition result.
type Transcript struct {
	Text string
	// Status is the upstream recognition status, e.g. "Success" or
	// "NoMatch".
	Status string
}

// Recognizer transcribes short utterances with Azure Speech-to-Text.
type Recognizer struct {
	httpClient *http.Client
	endpoint   string
	key        string
}

// NewRecognizer builds a recognizer for region. An explicit endpoint
// overrides the regional URL (tests point it at a local server).
func NewRecognizer(region, key string, timeout time.Duration) *Recognizer {
	return &Recognizer{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", region),
		key:        key,
	}
}

// WithEndpoint returns a copy using endpoint instead of the regional URL.
func (r *Recognizer) WithEndpoint(endpoint string) *Recognizer {
	c := *r
	c.endpoint = endpoint
	return &c
}

// azureResult lists every field the service has been seen to use.
type azureResult struct {
	DisplayText       string `json:"DisplayText"`
	Text              string `json:"Text"`
	RecognitionStatus string `json:"RecognitionStatus"`
	Reason            string `json:"reason"`
	ResultReason      string `json:"ResultReason"`
	Status            string `json:"Status"`
	NBest             []struct {
		Display string `json:"Display"`
		Lexical string `json:"Lexical"`
	} `json:"NBest"`
}

// Recognize posts audio (webm/opus unless contentType says otherwise) and
// returns the best transcript. language defaults to en-US.
func (r *Recognizer) Recognize(ctx context.Context, audio []byte, contentType, language string) (Transcript, error) {
	if r.key == "" {
		return Transcript{}, errors.New("speech: missing speech key or region")
	}
	if len(audio) == 0 {
		return Transcript{}, ErrNoAudio
	}
	if language == "" {
		language = "en-US"
	}
	if contentType == "" {
		contentType = "audio/webm; codecs=opus"
	}

	u, err := url.Parse(r.endpoint)
	if err != nil {
		return Transcript{}, fmt.Errorf("parse stt endpoint: %w", err)
	}
	q := u.Query()
	q.Set("language", language)
	q.Set("format", "detailed")
	q.Set("profanity", "masked")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return Transcript{}, fmt.Errorf("create stt request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", r.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("stt request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fmt.Errorf("read stt response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Transcript{}, fmt.Errorf("stt status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res azureResult
	if err := sonic.Unmarshal(body, &res); err != nil {
		return Transcript{}, fmt.Errorf("decode stt response: %w", err)
	}
	return Transcript{Text: res.text(), Status: res.status()}, nil
}

func (a azureResult) text() string {
	candidates := []string{a.DisplayText, a.Text}
	if len(a.NBest) > 0 {
		candidates = append(candidates, a.NBest[0].Display, a.NBest[0].Lexical)
	}
	return firstNonEmpty(candidates...)
}

func (a azureResult) status() string {
	return firstNonEmpty(a.RecognitionStatus, a.Reason, a.ResultReason, a.Status)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
