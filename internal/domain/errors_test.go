package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestProviderErrorRetriable(t *testing.T) {
	transport := NewProviderError("goldapi", errors.New("connection reset"))
	if !IsRetriable(transport) {
		t.Error("transport error should be retriable")
	}

	auth := NewFatalProviderError("goldapi", errors.New("status 401"))
	if IsRetriable(auth) {
		t.Error("auth error should not be retriable")
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewProviderError("metalsdev", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}

	wrapped := fmt.Errorf("fetch failed: %w", err)
	var pe *ProviderError
	if !errors.As(wrapped, &pe) {
		t.Fatal("expected errors.As to find *ProviderError")
	}
	if pe.Provider != "metalsdev" {
		t.Errorf("expected provider metalsdev, got %s", pe.Provider)
	}
}

func TestIsRetriableOnPlainError(t *testing.T) {
	if IsRetriable(errors.New("plain")) {
		t.Error("plain errors are not retriable")
	}
}

func TestFetchErrorCarriesBothFailures(t *testing.T) {
	primary := NewProviderError("goldapi", errors.New("timeout"))
	fallback := NewProviderError("metalsdev", errors.New("status 500"))
	err := &FetchError{
		Instrument: InstrumentGold,
		Currency:   "INR",
		Primary:    primary,
		Fallback:   fallback,
	}

	if !errors.Is(err, primary) || !errors.Is(err, fallback) {
		t.Error("aggregate error should unwrap to both upstream failures")
	}
}

func TestTimeoutErrorIsRetriable(t *testing.T) {
	err := TimeoutError("goldapi", 0)
	if !IsRetriable(err) {
		t.Error("timeouts are treated identically to transport errors")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("expected ErrTimeout in chain")
	}
}
