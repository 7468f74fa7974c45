package goldapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metals_go/internal/domain"
	"metals_go/internal/infra"
)

const goldLiveBody = `{
	"timestamp": 1752734400,
	"metal": "XAU",
	"currency": "INR",
	"exchange": "GOLDAPI",
	"price": 287703.55,
	"open_price": 286000.0,
	"high_price": 288100.25,
	"low_price": 285550.0,
	"prev_close_price": 286450.5,
	"ch": 1253.05,
	"chp": 0.44,
	"price_gram_24k": 9250.12,
	"price_gram_22k": 8479.28,
	"price_gram_18k": 6937.59
}`

func newTestClient(baseURL string) *Client {
	return NewClient(infra.ProviderConfig{
		BaseURL:    baseURL,
		APIKey:     "test-token",
		TimeoutSec: 2,
		MaxRPM:     600,
	})
}

func TestFetchLiveTranslatesWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/XAU/INR", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("x-access-token"))
		w.Write([]byte(goldLiveBody))
	}))
	defer srv.Close()

	q, err := newTestClient(srv.URL).FetchLive(context.Background(), domain.InstrumentGold, "INR")
	require.NoError(t, err)

	assert.Equal(t, domain.InstrumentGold, q.Instrument)
	assert.Equal(t, "INR", q.Currency)
	assert.Equal(t, infra.ProviderGoldAPI, q.Provider)
	assert.False(t, q.IsHistorical)
	assert.True(t, q.Price.Equal(decimal.NewFromFloat(287703.55)))
	assert.Equal(t, int64(1752734400), q.ObservedAt)
	assert.Equal(t, "2025-07-17", q.ObservedDate)

	require.NotNil(t, q.Open)
	assert.True(t, q.Open.Equal(decimal.NewFromFloat(286000.0)))
	require.NotNil(t, q.ChangePct)
	assert.True(t, q.ChangePct.Equal(decimal.NewFromFloat(0.44)))

	require.Len(t, q.PerGramByPurity, 3)
	assert.True(t, q.PerGramByPurity[domain.Purity24K].Equal(decimal.NewFromFloat(9250.12)))
	assert.True(t, q.PerGramByPurity[domain.Purity18K].Equal(decimal.NewFromFloat(6937.59)))
}

func TestFetchLiveSilverHasNoGramPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/XAG/USD", r.URL.Path)
		w.Write([]byte(`{"timestamp": 1752734400, "metal": "XAG", "currency": "USD", "price": 38.21}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv.URL).FetchLive(context.Background(), domain.InstrumentSilver, "USD")
	require.NoError(t, err)
	assert.Nil(t, q.PerGramByPurity)
	assert.Nil(t, q.Open)
}

func TestFetchHistoricalUsesDatePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/XAU/USD/20250101", r.URL.Path)
		w.Write([]byte(`{"timestamp": 1735689600, "metal": "XAU", "currency": "USD", "price": 2624.5}`))
	}))
	defer srv.Close()

	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q, err := newTestClient(srv.URL).FetchHistorical(context.Background(), domain.InstrumentGold, "USD", date)
	require.NoError(t, err)
	assert.True(t, q.IsHistorical)
	assert.Equal(t, "2025-01-01", q.ObservedDate)
	assert.True(t, q.Price.Equal(decimal.NewFromFloat(2624.5)))
}

func TestFetchHistoricalMissingTimestampUsesRequestedDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"metal": "XAU", "currency": "USD", "price": 2624.5}`))
	}))
	defer srv.Close()

	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q, err := newTestClient(srv.URL).FetchHistorical(context.Background(), domain.InstrumentGold, "USD", date)
	require.NoError(t, err)
	assert.Equal(t, date.Unix(), q.ObservedAt, "a timestamp-less historical response must carry the requested date, not now")
	assert.Equal(t, "2025-01-01", q.ObservedDate)
}

func TestFetchLiveAuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchLive(context.Background(), domain.InstrumentGold, "USD")
	require.Error(t, err)

	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, infra.ProviderGoldAPI, pe.Provider)
	assert.False(t, domain.IsRetriable(err), "auth failures must not be retried")
}

func TestFetchLiveServerErrorIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchLive(context.Background(), domain.InstrumentGold, "USD")
	require.Error(t, err)
	assert.True(t, domain.IsRetriable(err))
}

func TestFetchLiveUpstreamErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchLive(context.Background(), domain.InstrumentGold, "USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestFetchLiveNoRetryInsideClient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchLive(context.Background(), domain.InstrumentGold, "USD")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "retry policy belongs to the aggregator, not the client")
}
