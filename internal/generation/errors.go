package generation

import (
	"errors"
	"fmt"

	"github.com/lamim/folioforge/internal/api"
)

var (
	// ErrRateLimitExhausted means every rate-limit retry was used; resuming later may succeed
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")
	// ErrTransientExhausted means every transient-failure retry was used; resuming later may succeed
	ErrTransientExhausted = errors.New("transient retries exhausted")
	// ErrFatalGeneration is a non-retryable failure such as bad credentials or an invalid request
	ErrFatalGeneration = errors.New("fatal generation error")
)

// ContentError rejects a response whose text is unusable (refusal, truncated, too short).
// It is retried like a transient failure.
type ContentError struct {
	Reason string
}

func (e *ContentError) Error() string {
	return "unusable model output: " + e.Reason
}

// Recoverable reports whether err leaves the project resumable
func Recoverable(err error) bool {
	return errors.Is(err, ErrRateLimitExhausted) || errors.Is(err, ErrTransientExhausted)
}

// classify maps an attempt failure to its retry class. Unrecognized errors
// are treated as transient.
func classify(err error) (api.FailureKind, *api.APIError) {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, apiErr
	}
	return api.KindTransient, nil
}

func exhausted(sentinel error, retries int, last error) error {
	return fmt.Errorf("%w after %d retries: %w", sentinel, retries, last)
}
