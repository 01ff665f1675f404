// Package errors provides explicit, human-readable error types for querylens.
// All errors must include a Reason and Suggestion for actionable feedback.
//
// Statement-level analysis failures are NOT represented here: a query that
// fails to parse becomes an error fact and never aborts a batch. These types
// cover request-level failures only.
package errors

import (
	"fmt"
)

// QuerylensError is the base error type for all querylens errors.
// Every error must provide a human-readable reason and suggestion.
type QuerylensError struct {
	Code       ErrorCode
	Message    string
	Reason     string
	Suggestion string
	Cause      error
}

// ErrorCode represents the category of error for exit code mapping.
type ErrorCode int

const (
	CodeValidation ErrorCode = 1
	CodeConfig     ErrorCode = 2
	CodeExternal   ErrorCode = 3
	CodeInternal   ErrorCode = 4
)

func (e *QuerylensError) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s\nReason: %s", msg, e.Reason)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s\nSuggestion: %s", msg, e.Suggestion)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s\nCaused by: %v", msg, e.Cause)
	}
	return msg
}

func (e *QuerylensError) Unwrap() error {
	return e.Cause
}

// ExitCode maps the error category to a process exit code. Promoted to the
// typed wrappers through embedding.
func (e *QuerylensError) ExitCode() int {
	if e.Code == 0 {
		return int(CodeInternal)
	}
	return int(e.Code)
}

// ErrMissingIdentifier is returned when a required identifying parameter
// (platform, project, table, ...) is absent. Fatal to the request, never retried.
type ErrMissingIdentifier struct {
	QuerylensError
	Field string
}

// NewMissingIdentifier creates a new ErrMissingIdentifier.
func NewMissingIdentifier(field string) *ErrMissingIdentifier {
	return &ErrMissingIdentifier{
		QuerylensError: QuerylensError{
			Code:       CodeConfig,
			Message:    fmt.Sprintf("missing required identifier: %s", field),
			Reason:     "the analysis pipeline cannot scope its work without it",
			Suggestion: fmt.Sprintf("supply --%s or set it in the configuration", field),
		},
		Field: field,
	}
}

// ErrMissingConfiguration is returned when a required configuration value
// (such as the generator API key) is absent.
type ErrMissingConfiguration struct {
	QuerylensError
	Key string
}

// NewMissingConfiguration creates a new ErrMissingConfiguration.
func NewMissingConfiguration(key, suggestion string) *ErrMissingConfiguration {
	return &ErrMissingConfiguration{
		QuerylensError: QuerylensError{
			Code:       CodeConfig,
			Message:    fmt.Sprintf("configuration value not set: %s", key),
			Reason:     "this value is required and has no usable default",
			Suggestion: suggestion,
		},
		Key: key,
	}
}

// ErrNoData is returned when a request completes but no facts exist for the
// requested scope. Distinguishes "no data" from an external failure.
type ErrNoData struct {
	QuerylensError
	Platform string
	Project  string
	Table    string
}

// NewNoData creates a new ErrNoData.
func NewNoData(platform, project, table string) *ErrNoData {
	return &ErrNoData{
		QuerylensError: QuerylensError{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("no query facts found for %s/%s table %s", platform, project, table),
			Reason:     "nothing has been extracted and analyzed for this scope",
			Suggestion: "run 'querylens refresh all' and 'querylens analyze' first",
		},
		Platform: platform,
		Project:  project,
		Table:    table,
	}
}

// ErrAdvisoryFailed is returned when both advisory tiers are exhausted.
// There is no third tier; this is surfaced to the caller as-is.
type ErrAdvisoryFailed struct {
	QuerylensError
	Tier string
}

// NewAdvisoryFailed creates a new ErrAdvisoryFailed.
func NewAdvisoryFailed(tier string, cause error) *ErrAdvisoryFailed {
	return &ErrAdvisoryFailed{
		QuerylensError: QuerylensError{
			Code:       CodeExternal,
			Message:    "advisory generation failed",
			Reason:     fmt.Sprintf("the external generator failed at the %s tier", tier),
			Suggestion: "retry later or reduce the analyzed time range",
			Cause:      cause,
		},
		Tier: tier,
	}
}

// ErrUnknownPlatform is returned when no extractor or recommendation strategy
// is registered for a platform tag.
type ErrUnknownPlatform struct {
	QuerylensError
	Platform string
}

// NewUnknownPlatform creates a new ErrUnknownPlatform.
func NewUnknownPlatform(platform string, known []string) *ErrUnknownPlatform {
	return &ErrUnknownPlatform{
		QuerylensError: QuerylensError{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("unknown platform: %s", platform),
			Reason:     fmt.Sprintf("supported platforms: %v", known),
			Suggestion: "check the --platform flag",
		},
		Platform: platform,
	}
}

// ErrStorageFailed is returned when the persistence layer cannot serve a request.
type ErrStorageFailed struct {
	QuerylensError
	Operation string
}

// NewStorageFailed creates a new ErrStorageFailed.
func NewStorageFailed(operation string, cause error) *ErrStorageFailed {
	return &ErrStorageFailed{
		QuerylensError: QuerylensError{
			Code:       CodeInternal,
			Message:    fmt.Sprintf("storage operation failed: %s", operation),
			Reason:     "the persistence backend returned an error",
			Suggestion: "check the storage configuration and backend availability",
			Cause:      cause,
		},
		Operation: operation,
	}
}
