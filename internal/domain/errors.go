package domain

import (
	"errors"
	"fmt"
	"time"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ProviderError represents a failure from one named upstream provider:
// transport, auth, rate limiting or a malformed response body. It wraps the
// cause unmodified; provider clients never swallow transport errors.
type ProviderError struct {
	Provider  string
	Cause     error
	Retriable bool
}

func (e *ProviderError) Error() string {
	return "provider " + e.Provider + ": " + e.Cause.Error()
}

func (e *ProviderError) IsRetriable() bool {
	return e.Retriable
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a retriable provider error (transport, 5xx, timeout)
func NewProviderError(provider string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Cause: cause, Retriable: true}
}

// NewFatalProviderError creates a non-retriable provider error (auth, bad request)
func NewFatalProviderError(provider string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Cause: cause, Retriable: false}
}

// NotFoundError is returned when no data exists in the store and no provider
// is available to produce it.
type NotFoundError struct {
	Instrument Instrument
	Currency   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no quote for %s/%s", e.Instrument, e.Currency)
}

// ValidationError rejects malformed instrument/currency/date input before any I/O
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Msg
}

// ConfigurationError is returned for an unsupported provider name in SwitchProvider
type ConfigurationError struct {
	Name string
}

func (e *ConfigurationError) Error() string {
	return "unknown provider: " + e.Name
}

// FetchError aggregates the primary and fallback provider failures. The
// aggregator returns it only when the final store fallback also misses.
type FetchError struct {
	Instrument Instrument
	Currency   string
	Primary    error
	Fallback   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("all sources failed for %s/%s: primary: %v; fallback: %v",
		e.Instrument, e.Currency, e.Primary, e.Fallback)
}

func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

var (
	// ErrTimeout marks a provider call that exceeded its configured timeout.
	// The retry policy treats it identically to a transport error.
	ErrTimeout = errors.New("provider call timed out")
)

// TimeoutError builds a retriable provider timeout error
func TimeoutError(provider string, timeout time.Duration) *ProviderError {
	return NewProviderError(provider, fmt.Errorf("%w after %s", ErrTimeout, timeout))
}
