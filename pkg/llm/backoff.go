package llm

import (
	"errors"
	"strings"
	"time"
)

// ErrRateLimited is wrapped by a provider's error when the upstream model
// signals throttling. Call does not count these toward the operation's
// circuit breaker (spec.md §4.6); it retries after an exponential backoff.
var ErrRateLimited = errors.New("llm: rate limited")

// rateLimitHints catches provider error strings that don't carry a typed
// rate-limit error (e.g. a LocalAI/Ollama-compatible endpoint proxying an
// upstream 429 as a generic HTTP error).
var rateLimitHints = []string{"429", "rate limit", "rate_limit", "too many requests", "throttl"}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range rateLimitHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// backoffDelay implements the 1s, 2s, 4s, … cap sequence from spec.md §4.6.
func backoffDelay(attempt int, capMs int) time.Duration {
	cap := time.Duration(capMs) * time.Millisecond
	if cap <= 0 {
		cap = 30 * time.Second
	}
	d := time.Second << uint(attempt)
	if d <= 0 || d > cap {
		return cap
	}
	return d
}
