// Package faults defines the error taxonomy shared by every pipeline stage.
// Adapters wrap provider failures into these types; the orchestrator only ever
// inspects them to build a terminal task message.
package faults

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels used by adapters to mark an error class for the retry loop.
var (
	// ErrRateLimited marks a provider 429 / quota signal. The retry loop
	// advances to the next credential immediately.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient marks a network-level failure worth retrying on the same
	// credential after a short pause.
	ErrTransient = errors.New("transient network failure")
)

// InvalidConfigError reports bad static setup. Fatal at startup.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid config: " + e.Reason
}

func InvalidConfig(format string, args ...any) error {
	return &InvalidConfigError{Reason: fmt.Sprintf(format, args...)}
}

// AllCredentialsExhaustedError means every credential in a provider's pool was
// tried and rejected.
type AllCredentialsExhaustedError struct {
	Provider string
	Last     error
}

func (e *AllCredentialsExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s: all credentials exhausted (last: %v)", e.Provider, e.Last)
	}
	return e.Provider + ": all credentials exhausted"
}

func (e *AllCredentialsExhaustedError) Unwrap() error { return e.Last }

// ProviderError is a non-retryable provider failure.
type ProviderError struct {
	Provider string
	Detail   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Detail)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func Provider(provider, detail string, err error) error {
	return &ProviderError{Provider: provider, Detail: detail, Err: err}
}

// MalformedScriptResponseError means the script author's response could not be
// decoded into a script.
type MalformedScriptResponseError struct {
	Detail string
	Err    error
}

func (e *MalformedScriptResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed script response: %s: %v", e.Detail, e.Err)
	}
	return "malformed script response: " + e.Detail
}

func (e *MalformedScriptResponseError) Unwrap() error { return e.Err }

// InvalidScriptDurationError means the script author violated a hard duration
// constraint it was instructed to honor. Not auto-repairable.
type InvalidScriptDurationError struct {
	SceneNumber int
	Min, Max    float64
	Actual      float64
}

func (e *InvalidScriptDurationError) Error() string {
	return fmt.Sprintf("scene %d duration %.2fs outside allowed range [%.0f, %.0f]",
		e.SceneNumber, e.Actual, e.Min, e.Max)
}

// NoResultsFoundError means a search provider returned zero usable results.
// Recoverable at scene granularity: it fails the task, not the process.
type NoResultsFoundError struct {
	Provider string
	Query    string
}

func (e *NoResultsFoundError) Error() string {
	return fmt.Sprintf("%s: no results found for %q", e.Provider, e.Query)
}

// AuthenticationUnavailableError means no usable credential path could be
// resolved for a provider.
type AuthenticationUnavailableError struct {
	Provider string
	Detail   string
}

func (e *AuthenticationUnavailableError) Error() string {
	return fmt.Sprintf("%s: authentication unavailable: %s", e.Provider, e.Detail)
}

// TimeoutError reports the polling ceiling being exceeded.
type TimeoutError struct {
	Provider string
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Provider, e.Elapsed)
}
