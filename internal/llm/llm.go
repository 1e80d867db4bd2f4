package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/FeedbackLens/internal/config"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("Empty response received")

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// Generator produces a Result for a prompt. Client implements it; tests
// substitute fakes.
type Generator interface {
	Generate(ctx context.Context, prompt string) Result
}

// Result is the outcome of one model call: either response text or the
// error that prevented it.
type Result struct {
	content string
	err     error
}

// Success wraps model output.
func Success(content string) Result { return Result{content: content} }

// Failure wraps an upstream error.
func Failure(err error) Result { return Result{err: err} }

// OK reports whether the call produced text.
func (r Result) OK() bool { return r.err == nil }

// Err returns the upstream error, or nil.
func (r Result) Err() error { return r.err }

// Content returns the model output; empty on failure.
func (r Result) Content() string { return r.content }

// Diagnostic returns a human-readable description of the failure, or "".
func (r Result) Diagnostic() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// Text returns the model output on success and the diagnostic on failure,
// so downstream parsing always receives some string.
func (r Result) Text() string {
	if r.err != nil {
		return r.Diagnostic()
	}
	return r.content
}

// Options tunes a Client.
type Options struct {
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client wraps a Provider with a rate limiter and per-call timeout and folds
// every failure into a Result.
type Client struct {
	provider  Provider
	limiter   *rate.Limiter
	maxTokens int
	timeout   time.Duration
	log       *zap.Logger
}

// NewClient creates a Client. A zero RequestsPerMinute disables limiting.
func NewClient(provider Provider, opts Options, log *zap.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	return &Client{
		provider:  provider,
		limiter:   limiter,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
		log:       log,
	}
}

// Name returns the underlying provider name.
func (c *Client) Name() string {
	return c.provider.Name()
}

// Generate sends prompt to the provider. It never returns a Go error:
// failures come back as a Result carrying a diagnostic.
func (c *Client) Generate(ctx context.Context, prompt string) Result {
	if err := c.limiter.Wait(ctx); err != nil {
		c.log.Warn("rate limiter wait aborted", zap.Error(err))
		return Failure(fmt.Errorf("rate limit wait: %w", err))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.provider.Generate(ctx, prompt, c.maxTokens)
	if err != nil {
		c.log.Warn("model call failed",
			zap.String("provider", c.provider.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Failure(err)
	}
	if strings.TrimSpace(text) == "" {
		c.log.Warn("model returned empty response", zap.String("provider", c.provider.Name()))
		return Failure(ErrEmptyResponse)
	}

	c.log.Debug("model call complete",
		zap.String("provider", c.provider.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(text)))
	return Success(text)
}

// CreateProvider creates an LLM provider based on configuration. apiKey is
// ignored by providers that do not authenticate.
func CreateProvider(ctx context.Context, cfg config.LLM, apiKey string, log *zap.Logger) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "google":
		p, err := NewGeminiProvider(ctx, apiKey, cfg.Model, "")
		if err != nil {
			return nil, err
		}
		log.Info("using Gemini", zap.String("model", p.model))
		return p, nil

	case "ollama":
		p := NewOllamaProvider(cfg.Model, cfg.OllamaURL)
		if !p.IsConfigured() {
			log.Warn("Ollama not reachable or model missing; calls will fail until it is available",
				zap.String("url", cfg.OllamaURL), zap.String("model", cfg.Model))
		}
		log.Info("using Ollama", zap.String("model", cfg.Model))
		return p, nil

	case "openai":
		p := NewOpenAIProvider(cfg.OpenAIModel, apiKey)
		log.Info("using OpenAI", zap.String("model", cfg.OpenAIModel))
		return p, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: gemini, ollama, openai)", cfg.Provider)
	}
}
