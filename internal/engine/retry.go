package engine

import (
	"time"

	"github.com/stepflow-dev/stepflow/internal/domain"
)

// retryDecision is the outcome of applying §4.7's retry policy at a node's
// failure point.
type retryDecision struct {
	shouldRetry   bool
	attemptNumber int
	maxAttempts   int
	resumeAt      time.Time
}

// decideRetry implements §4.7: retry iff retry_on_failed is set, max_retries
// is positive, and the already-attempted count is below it. current_attempt
// is read from the prior retry suspension's attempt_number, defaulting to 0
// for a first failure.
func decideRetry(settings domain.RetrySettings, currentAttempt int, now time.Time) retryDecision {
	if !settings.RetryOnFailed || settings.MaxRetries <= 0 || currentAttempt >= settings.MaxRetries {
		return retryDecision{shouldRetry: false}
	}
	return retryDecision{
		shouldRetry:   true,
		attemptNumber: currentAttempt + 1,
		maxAttempts:   settings.MaxRetries,
		resumeAt:      now.Add(time.Duration(settings.RetryDelayMs) * time.Millisecond),
	}
}

// attemptNumberFromSuspension reads suspension_data.attempt_number from a
// prior retry suspension record, defaulting to 0.
func attemptNumberFromSuspension(data map[string]any) int {
	if data == nil {
		return 0
	}
	switch v := data["attempt_number"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
