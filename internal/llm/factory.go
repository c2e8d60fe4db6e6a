package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/vidyadost/vidyadost/internal/logger"
	"github.com/vidyadost/vidyadost/internal/store"
)

// NewProvider creates a Provider from configuration, wrapped with the
// request timeout, retry and logging middleware.
func NewProvider(ctx context.Context, cfg Config, eventRepo store.EventRepo, log *logger.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ErrNotConfigured{Err: err}
	}

	var base Provider
	var err error

	switch cfg.Provider {
	case "groq":
		base, err = NewGroqProvider(cfg.Groq, log)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// caller → timeout → retry → logging → base
	logged := WithLogging(base, eventRepo, log)
	retried := WithRetry(logged, cfg.Retry)
	return WithTimeout(retried, cfg.Timeout), nil
}

// Unavailable returns a Provider that fails every request with err. It
// stands in when configuration is missing so each request reports the
// problem instead of the application refusing to start.
func Unavailable(err error) Provider {
	var nc *ErrNotConfigured
	if !errors.As(err, &nc) {
		err = &ErrNotConfigured{Err: err}
	}
	return unavailableProvider{err: err}
}

type unavailableProvider struct {
	err error
}

func (u unavailableProvider) Generate(context.Context, Request) (*Response, error) {
	return nil, u.err
}

func (u unavailableProvider) Stream(context.Context, Request, DeltaFunc) (*Response, error) {
	return nil, u.err
}

func (u unavailableProvider) ModelID() string { return "unavailable" }
