package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stepflow-dev/stepflow/internal/domain"
)

func TestDecideRetry_RetryOnFailedOff(t *testing.T) {
	settings := domain.RetrySettings{RetryOnFailed: false, MaxRetries: 3, RetryDelayMs: 100}
	d := decideRetry(settings, 0, time.Now())
	assert.False(t, d.shouldRetry)
}

func TestDecideRetry_NoMaxRetriesConfigured(t *testing.T) {
	settings := domain.RetrySettings{RetryOnFailed: true, MaxRetries: 0, RetryDelayMs: 100}
	d := decideRetry(settings, 0, time.Now())
	assert.False(t, d.shouldRetry)
}

func TestDecideRetry_WithinBudget(t *testing.T) {
	settings := domain.RetrySettings{RetryOnFailed: true, MaxRetries: 3, RetryDelayMs: 500}
	now := time.Now()
	d := decideRetry(settings, 1, now)
	assert.True(t, d.shouldRetry)
	assert.Equal(t, 2, d.attemptNumber)
	assert.Equal(t, 3, d.maxAttempts)
	assert.Equal(t, now.Add(500*time.Millisecond), d.resumeAt)
}

func TestDecideRetry_ExhaustedAtMax(t *testing.T) {
	settings := domain.RetrySettings{RetryOnFailed: true, MaxRetries: 3, RetryDelayMs: 100}
	d := decideRetry(settings, 3, time.Now())
	assert.False(t, d.shouldRetry)
}

func TestAttemptNumberFromSuspension(t *testing.T) {
	assert.Equal(t, 0, attemptNumberFromSuspension(nil))
	assert.Equal(t, 2, attemptNumberFromSuspension(map[string]any{"attempt_number": 2}))
	assert.Equal(t, 2, attemptNumberFromSuspension(map[string]any{"attempt_number": int64(2)}))
	assert.Equal(t, 2, attemptNumberFromSuspension(map[string]any{"attempt_number": float64(2)}))
	assert.Equal(t, 0, attemptNumberFromSuspension(map[string]any{"other": "field"}))
}
