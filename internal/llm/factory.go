package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/emera/sattur/internal/store"
)

// Options carries the optional collaborators for NewProvider.
type Options struct {
	EventRepo store.EventRepo
	Logger    *zap.Logger

	// OnBreakerState is notified of circuit breaker transitions.
	OnBreakerState func(to string)
}

// NewProvider creates a Provider from configuration, wrapped with
// retry, circuit breaker and logging middleware.
func NewProvider(ctx context.Context, cfg Config, opts Options) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
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

	return Wrap(base, cfg, opts), nil
}

// Wrap applies the middleware chain:
// caller → retry → breaker → logging → base.
// Each retry attempt is logged and counted by the breaker separately.
func Wrap(base Provider, cfg Config, opts Options) Provider {
	p := WithLogging(base, cfg.Provider, opts.EventRepo, opts.Logger)
	if cfg.Breaker.Enabled {
		p = WithCircuitBreaker(p, "llm-"+cfg.Provider, cfg.Breaker, opts.Logger, opts.OnBreakerState)
	}
	return WithRetry(p, cfg.Retry)
}
