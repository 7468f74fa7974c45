package metalsdev

import (
	"context"
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

func newTestClient(baseURL string) *Client {
	return NewClient(infra.ProviderConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		TimeoutSec: 2,
		MaxRPM:     600,
	})
}

func TestFetchAllReturnsEverySupportedMetal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/latest", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "USD", r.URL.Query().Get("currency"))
		w.Write([]byte(`{
			"status": "success",
			"currency": "USD",
			"unit": "toz",
			"metals": {"gold": 2536.5, "silver": 29.5, "platinum": 980.0, "palladium": 940.0, "aluminum": 1.2},
			"timestamps": {"metal": "2025-07-17T06:40:00Z"}
		}`))
	}))
	defer srv.Close()

	quotes, err := newTestClient(srv.URL).FetchAll(context.Background(), "USD")
	require.NoError(t, err)
	require.Len(t, quotes, 4, "unsupported metals in the batch are ignored")

	byInstrument := make(map[domain.Instrument]*domain.Quote)
	for _, q := range quotes {
		byInstrument[q.Instrument] = q
	}
	require.Contains(t, byInstrument, domain.InstrumentGold)
	assert.True(t, byInstrument[domain.InstrumentGold].Price.Equal(decimal.NewFromFloat(2536.5)))
	assert.Equal(t, int64(1752734400), byInstrument[domain.InstrumentGold].ObservedAt)
	assert.Equal(t, infra.ProviderMetalsDev, byInstrument[domain.InstrumentSilver].Provider)
}

func TestFetchLiveSpotEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/metal/spot", r.URL.Path)
		assert.Equal(t, "gold", r.URL.Query().Get("metal"))
		w.Write([]byte(`{
			"status": "success",
			"currency": "INR",
			"metal": "gold",
			"timestamp": "2025-07-17T06:40:00Z",
			"rate": {"price": 287703.55, "open": 286000.0, "high": 288100.25, "low": 285550.0, "ch": 1253.05, "chp": 0.44}
		}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv.URL).FetchLive(context.Background(), domain.InstrumentGold, "INR")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromFloat(287703.55)))
	assert.Equal(t, int64(1752734400), q.ObservedAt)
	require.NotNil(t, q.High)
	assert.True(t, q.High.Equal(decimal.NewFromFloat(288100.25)))
	assert.Nil(t, q.PerGramByPurity, "metals.dev has no purity breakdown")
}

func TestFetchHistorical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/metal/historical", r.URL.Path)
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("date"))
		w.Write([]byte(`{"status": "success", "metal": "gold", "currency": "USD", "rate": {"price": 2624.5}}`))
	}))
	defer srv.Close()

	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q, err := newTestClient(srv.URL).FetchHistorical(context.Background(), domain.InstrumentGold, "USD", date)
	require.NoError(t, err)
	assert.True(t, q.IsHistorical)
	assert.Equal(t, "2025-01-01", q.ObservedDate)
}

func TestFailureStatusSurfacesAsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "failure", "error_message": "invalid api key"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAll(context.Background(), "USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Contains(t, err.Error(), infra.ProviderMetalsDev)
}

func TestBatchWithoutSupportedMetalsFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "success", "metals": {"aluminum": 1.2}, "timestamps": {"metal": ""}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAll(context.Background(), "USD")
	require.Error(t, err)
}
