// Package llm implements C1, the LLM gateway: a single call(operation,
// prompt) → text entry point that enforces one circuit breaker entry per
// logical operation and a rate-limit backoff envelope that does not count
// toward that breaker (spec.md §4.6).
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/internal/config"
	"github.com/plugincraft/forge/pkg/breaker"
	forgeerrors "github.com/plugincraft/forge/pkg/shared/errors"
	"github.com/plugincraft/forge/pkg/shared/logging"
)

// Provider performs one completion call against a concrete model backend.
type Provider interface {
	Complete(ctx context.Context, model string, temperature float32, maxTokens int, prompt string) (string, error)
}

// Client is the C1 gateway: one Provider behind circuit breaking and
// rate-limit backoff, shared by every logical operation.
type Client struct {
	cfg      config.LLMConfig
	provider Provider
	breaker  *breaker.Registry
	logger   *logrus.Logger
}

// NewClient builds a gateway around the provider named by cfg.Provider
// ("anthropic", "bedrock", or "local").
func NewClient(cfg config.LLMConfig, registry *breaker.Registry, logger *logrus.Logger) (*Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, provider: provider, breaker: registry, logger: logger}, nil
}

// NewClientWithProvider wires an explicit Provider, used by tests and by
// callers wanting a provider other than the three built in.
func NewClientWithProvider(cfg config.LLMConfig, provider Provider, registry *breaker.Registry, logger *logrus.Logger) *Client {
	return &Client{cfg: cfg, provider: provider, breaker: registry, logger: logger}
}

func newProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "bedrock":
		return newBedrockProvider(cfg)
	case "local":
		return newLocalProvider(cfg)
	default:
		return nil, forgeerrors.ConfigurationError("llm.provider", fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}

// Call is C1's single entry point. operation names the logical call site
// (e.g. "classify_intent", "generate_code") and owns its own breaker entry.
func (c *Client) Call(ctx context.Context, operation, prompt string) (string, error) {
	if !c.breaker.Allow(operation) {
		return "", forgeerrors.New(forgeerrors.KindLLM, operation, fmt.Errorf("circuit breaker open for %q", operation))
	}

	start := time.Now()
	text, err := c.callWithBackoff(ctx, operation, prompt)
	if err != nil {
		c.breaker.RecordFailure(operation)
		if c.logger != nil {
			c.logger.WithFields(logging.NewFields().Component("llm").Operation(operation).
				Duration(time.Since(start)).Error(err).ToLogrus()).Warn("llm call failed")
		}
		return "", forgeerrors.New(forgeerrors.KindLLM, operation, err)
	}

	c.breaker.RecordSuccess(operation)
	if c.logger != nil {
		c.logger.WithFields(logging.NewFields().Component("llm").Operation(operation).
			Duration(time.Since(start)).Size(int64(len(text))).ToLogrus()).Debug("llm call succeeded")
	}
	return text, nil
}

// callWithBackoff retries only on rate-limit signals, with the exponential
// envelope capped at cfg.BackoffCapMs; these retries are internal to one
// breaker-gated call and never touch the breaker themselves.
func (c *Client) callWithBackoff(ctx context.Context, operation, prompt string) (string, error) {
	for attempt := 0; ; attempt++ {
		text, err := c.provider.Complete(ctx, c.cfg.Model, c.cfg.Temperature, c.cfg.MaxTokens, prompt)
		if err == nil {
			return text, nil
		}
		if !isRateLimited(err) {
			return "", err
		}

		delay := backoffDelay(attempt, c.cfg.BackoffCapMs)
		if c.logger != nil {
			c.logger.WithFields(logging.NewFields().Component("llm").Operation(operation).
				Custom("backoff_ms", delay.Milliseconds()).ToLogrus()).Info("llm rate limited, backing off")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
}
