// Package advisor orchestrates the anonymized advisory exchange: it builds
// a prompt from aggregated statistics, calls the text generator with retry,
// falls back from weekly to monthly granularity, and restores identifiers
// in the response.
package advisor

import (
	"context"
	"fmt"
	"time"
)

// ErrorKind classifies generator failures for retry decisions.
type ErrorKind int

const (
	// KindOther is a non-retryable failure.
	KindOther ErrorKind = iota
	// KindOverloaded means the backend rejected the call under load.
	KindOverloaded
	// KindEmpty means the backend answered with no usable text.
	KindEmpty
)

// GeneratorError describes a failed generation call.
type GeneratorError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *GeneratorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("generator: %s: %v", e.Message, e.Cause)
	}
	return "generator: " + e.Message
}

func (e *GeneratorError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt may succeed. Overload and empty
// responses are transient; everything else is not.
func (e *GeneratorError) Retryable() bool {
	return e.Kind == KindOverloaded || e.Kind == KindEmpty
}

// Generator produces advisory text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ModelParams tunes the generation call.
type ModelParams struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// DefaultModelParams returns the parameters used when none are configured.
func DefaultModelParams() ModelParams {
	return ModelParams{
		Model:           "gemini-2.0-flash",
		Temperature:     0.3,
		MaxOutputTokens: 8192,
	}
}

const (
	maxGenerateAttempts = 3
	baseRetryDelay      = 2 * time.Second
)

// generateWithRetry calls the generator up to maxGenerateAttempts times with
// exponential backoff (2s, 4s). Only overload and empty responses are
// retried. The sleep function is injectable for tests and must honor ctx.
func generateWithRetry(ctx context.Context, gen Generator, prompt string, sleep func(context.Context, time.Duration) error) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		text, err := gen.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		genErr, ok := err.(*GeneratorError)
		if !ok || !genErr.Retryable() || attempt == maxGenerateAttempts-1 {
			break
		}
		delay := baseRetryDelay << attempt
		if err := sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// ctxSleep waits for the duration or until the context is cancelled.
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
