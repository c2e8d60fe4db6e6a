package llm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/vidyadost/vidyadost/internal/logger"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// groqModels maps friendly names to Groq model IDs.
var groqModels = map[string]string{
	"llama-small": "llama-3.1-8b-instant",
	"llama-large": "llama-3.3-70b-versatile",
}

// GroqProvider talks to an OpenAI-compatible chat-completions endpoint
// over plain HTTP and parses the server-sent-event stream itself, so
// malformed frames can be skipped instead of failing the answer.
type GroqProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	log        *logger.Logger
}

// NewGroqProvider creates a provider for Groq or a compatible endpoint.
func NewGroqProvider(cfg GroqConfig, log *logger.Logger) (*GroqProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	return &GroqProvider{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      resolveModel(cfg.Model, groqModels),
		log:        logger.OrNop(log),
	}, nil
}

type sseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sseRequest struct {
	Model          string            `json:"model"`
	Messages       []sseMessage      `json:"messages"`
	Stream         bool              `json:"stream"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type sseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type sseChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *sseUsage `json:"usage"`
	XGroq *struct {
		Usage *sseUsage `json:"usage"`
	} `json:"x_groq"`
}

func (p *GroqProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	body := p.buildRequest(req, false)
	if req.Schema != nil {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	httpResp, err := p.do(ctx, body)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ErrProviderUnavailable{Err: err}
	}
	var chunk sseChunk
	if err := sonic.Unmarshal(raw, &chunk); err != nil {
		return nil, &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("decode completion: %w", err)}
	}
	if len(chunk.Choices) == 0 {
		return nil, &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("no choices in response")}
	}

	content := []byte(chunk.Choices[0].Message.Content)
	if req.Schema != nil {
		if err := validateResponse(req.Schema, content); err != nil {
			return nil, err
		}
	}

	resp := &Response{
		Content:    content,
		Model:      p.model,
		StopReason: mapSSEStopReason(chunk.Choices[0].FinishReason),
	}
	if chunk.Model != "" {
		resp.Model = chunk.Model
	}
	if chunk.Usage != nil {
		resp.Usage = mapSSEUsage(*chunk.Usage)
	}
	return resp, nil
}

func (p *GroqProvider) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	httpResp, err := p.do(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	resp := &Response{Model: p.model, StopReason: "end"}
	var text strings.Builder
	done := errors.New("done")

	err = readSSE(httpResp.Body, func(data string) error {
		if data == "[DONE]" {
			return done
		}
		var chunk sseChunk
		if err := sonic.UnmarshalString(data, &chunk); err != nil {
			p.log.Warn("skipping malformed stream frame", "error", err, "frame", truncate(data, 120))
			return nil
		}
		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		switch {
		case chunk.Usage != nil:
			resp.Usage = mapSSEUsage(*chunk.Usage)
		case chunk.XGroq != nil && chunk.XGroq.Usage != nil:
			resp.Usage = mapSSEUsage(*chunk.XGroq.Usage)
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			resp.StopReason = mapSSEStopReason(choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			return nil
		}
		text.WriteString(choice.Delta.Content)
		return onDelta(choice.Delta.Content)
	})
	if err != nil && !errors.Is(err, done) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	resp.Text = text.String()
	return resp, nil
}

func (p *GroqProvider) ModelID() string {
	return p.model
}

func (p *GroqProvider) buildRequest(req Request, stream bool) sseRequest {
	body := sseRequest{
		Model:       p.model,
		Stream:      stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, sseMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, sseMessage{Role: string(m.Role), Content: m.Content})
	}
	return body
}

func (p *GroqProvider) do(ctx context.Context, body sseRequest) (*http.Response, error) {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ErrProviderUnavailable{Err: err}
	}
	if httpResp.StatusCode/100 == 2 {
		return httpResp, nil
	}

	defer httpResp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
	statusErr := fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, &ErrRateLimit{RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After")), Err: statusErr}
	}
	return nil, &ErrProviderUnavailable{Err: statusErr}
}

// readSSE splits an event stream into frames and calls onData with each
// frame's joined data lines. Comments and event names are ignored.
func readSSE(r io.Reader, onData func(data string) error) error {
	br := bufio.NewReader(r)
	var dataLines []string

	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil
		return onData(data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line = strings.TrimRight(line, "\r\n"); strings.HasPrefix(line, "data:") {
					dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
				}
				return flush()
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

func mapSSEUsage(u sseUsage) Usage {
	return Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

func mapSSEStopReason(reason string) string {
	if reason == "length" {
		return "max_tokens"
	}
	return "end"
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
