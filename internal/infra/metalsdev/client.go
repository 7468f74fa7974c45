package metalsdev

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"metals_go/internal/domain"
	"metals_go/internal/infra"
)

// Client is the metals.dev REST adapter. Unlike GoldAPI it exposes a batch
// endpoint covering all metals in one call, which the aggregator prefers for
// GetAllQuotes.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new metals.dev client from provider configuration.
func NewClient(cfg infra.ProviderConfig) *Client {
	rpm := cfg.MaxRPM
	if rpm <= 0 {
		rpm = 60
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		logger:  slog.Default().With("module", "metalsdev_client"),
	}
}

// Name returns the provider name used in quotes and configuration.
func (c *Client) Name() string { return infra.ProviderMetalsDev }

// FetchLive fetches the current quote for one instrument/currency pair.
func (c *Client) FetchLive(ctx context.Context, instrument domain.Instrument, currency string) (*domain.Quote, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("metal", string(instrument))
	params.Set("currency", currency)

	body, err := c.get(ctx, "/v1/metal/spot", params)
	if err != nil {
		return nil, err
	}

	var data spotResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, domain.NewProviderError(c.Name(), fmt.Errorf("malformed response: %w", err))
	}
	if err := c.checkStatus(data.Status, data.ErrMsg); err != nil {
		return nil, err
	}
	if data.Rate.Price <= 0 {
		return nil, domain.NewProviderError(c.Name(), fmt.Errorf("non-positive price %v", data.Rate.Price))
	}

	q := &domain.Quote{
		Instrument: instrument,
		Currency:   currency,
		Provider:   c.Name(),
		Price:      decimal.NewFromFloat(data.Rate.Price),
		Open:       decimalPtr(data.Rate.Open),
		High:       decimalPtr(data.Rate.High),
		Low:        decimalPtr(data.Rate.Low),
		Close:      decimalPtr(data.Rate.Close),
		ChangeAbs:  decimalPtr(data.Rate.Change),
		ChangePct:  decimalPtr(data.Rate.Pct),
		ObservedAt: parseTimestamp(data.Timestamp),
	}
	q.NormalizeKey()
	return q, nil
}

// FetchHistorical fetches the closing quote for a past date.
func (c *Client) FetchHistorical(ctx context.Context, instrument domain.Instrument, currency string, date time.Time) (*domain.Quote, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("metal", string(instrument))
	params.Set("currency", currency)
	params.Set("date", date.Format("2006-01-02"))

	body, err := c.get(ctx, "/v1/metal/historical", params)
	if err != nil {
		return nil, err
	}

	var data spotResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, domain.NewProviderError(c.Name(), fmt.Errorf("malformed response: %w", err))
	}
	if err := c.checkStatus(data.Status, data.ErrMsg); err != nil {
		return nil, err
	}
	if data.Rate.Price <= 0 {
		return nil, domain.NewProviderError(c.Name(), fmt.Errorf("non-positive price %v", data.Rate.Price))
	}

	q := &domain.Quote{
		Instrument:   instrument,
		Currency:     currency,
		Provider:     c.Name(),
		IsHistorical: true,
		Price:        decimal.NewFromFloat(data.Rate.Price),
		Open:         decimalPtr(data.Rate.Open),
		High:         decimalPtr(data.Rate.High),
		Low:          decimalPtr(data.Rate.Low),
		Close:        decimalPtr(data.Rate.Close),
		ObservedAt:   date.UTC().Unix(),
		ObservedDate: date.Format("2006-01-02"),
	}
	return q, nil
}

// FetchAll fetches all supported instruments in a single batch call.
func (c *Client) FetchAll(ctx context.Context, currency string) ([]*domain.Quote, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("currency", currency)
	params.Set("unit", "toz")

	body, err := c.get(ctx, "/v1/latest", params)
	if err != nil {
		return nil, err
	}

	var data latestResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, domain.NewProviderError(c.Name(), fmt.Errorf("malformed response: %w", err))
	}
	if err := c.checkStatus(data.Status, data.ErrMsg); err != nil {
		return nil, err
	}

	observedAt := parseTimestamp(data.Timestamps.Metal)
	quotes := make([]*domain.Quote, 0, len(domain.AllInstruments))
	for _, instrument := range domain.AllInstruments {
		price, ok := data.Metals[string(instrument)]
		if !ok || price <= 0 {
			continue
		}
		q := &domain.Quote{
			Instrument: instrument,
			Currency:   currency,
			Provider:   c.Name(),
			Price:      decimal.NewFromFloat(price),
			ObservedAt: observedAt,
		}
		q.NormalizeKey()
		quotes = append(quotes, q)
	}

	if len(quotes) == 0 {
		return nil, domain.NewProviderError(c.Name(), errors.New("batch response contained no supported metals"))
	}
	return quotes, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.NewProviderError(c.Name(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, domain.NewFatalProviderError(c.Name(), err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.TimeoutError(c.Name(), c.timeout)
		}
		return nil, domain.NewProviderError(c.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewProviderError(c.Name(), err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewFatalProviderError(c.Name(), fmt.Errorf("auth rejected: status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewProviderError(c.Name(), fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	return body, nil
}

func (c *Client) checkStatus(status, msg string) error {
	if status == "success" {
		return nil
	}
	if msg == "" {
		msg = "status " + status
	}
	return domain.NewProviderError(c.Name(), errors.New(msg))
}

func parseTimestamp(s string) int64 {
	if s == "" {
		return time.Now().Unix()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix()
	}
	return time.Now().Unix()
}

func decimalPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}
