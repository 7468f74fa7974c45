package goldapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"metals_go/internal/domain"
	"metals_go/internal/infra"
)

// symbols maps canonical instruments to GoldAPI metal symbols.
var symbols = map[domain.Instrument]string{
	domain.InstrumentGold:      "XAU",
	domain.InstrumentSilver:    "XAG",
	domain.InstrumentPlatinum:  "XPT",
	domain.InstrumentPalladium: "XPD",
}

// Client is the GoldAPI REST adapter (boundary layer). It translates the
// provider wire format into domain.Quote and nothing else: no retries, no
// caching. Failures surface as *domain.ProviderError.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new GoldAPI client from provider configuration.
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
		logger:  slog.Default().With("module", "goldapi_client"),
	}
}

// Name returns the provider name used in quotes and configuration.
func (c *Client) Name() string { return infra.ProviderGoldAPI }

// FetchLive fetches the current quote for one instrument/currency pair.
func (c *Client) FetchLive(ctx context.Context, instrument domain.Instrument, currency string) (*domain.Quote, error) {
	symbol, ok := symbols[instrument]
	if !ok {
		return nil, &domain.ValidationError{Field: "instrument", Msg: string(instrument)}
	}
	url := fmt.Sprintf("%s/api/%s/%s", c.baseURL, symbol, currency)
	resp, err := c.doFetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return c.toQuote(resp, instrument, currency, false), nil
}

// FetchHistorical fetches the quote for one instrument/currency on a past date.
func (c *Client) FetchHistorical(ctx context.Context, instrument domain.Instrument, currency string, date time.Time) (*domain.Quote, error) {
	symbol, ok := symbols[instrument]
	if !ok {
		return nil, &domain.ValidationError{Field: "instrument", Msg: string(instrument)}
	}
	url := fmt.Sprintf("%s/api/%s/%s/%s", c.baseURL, symbol, currency, date.Format("20060102"))
	resp, err := c.doFetch(ctx, url)
	if err != nil {
		return nil, err
	}

	q := c.toQuote(resp, instrument, currency, true)
	q.ObservedDate = date.Format("2006-01-02")
	if q.ObservedAt == 0 {
		q.ObservedAt = date.UTC().Unix()
	}
	return q, nil
}

func (c *Client) doFetch(ctx context.Context, url string) (*liveResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.NewProviderError(c.Name(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewFatalProviderError(c.Name(), err)
	}
	req.Header.Set("x-access-token", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

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

	var data liveResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, domain.NewProviderError(c.Name(), fmt.Errorf("malformed response: %w", err))
	}
	if data.Error != "" {
		return nil, domain.NewProviderError(c.Name(), errors.New(data.Error))
	}
	if data.Price <= 0 {
		return nil, domain.NewProviderError(c.Name(), fmt.Errorf("non-positive price %v", data.Price))
	}

	return &data, nil
}

// toQuote translates the wire format into the canonical quote. Gram prices by
// purity only exist for gold upstream.
func (c *Client) toQuote(r *liveResponse, instrument domain.Instrument, currency string, historical bool) *domain.Quote {
	q := &domain.Quote{
		Instrument:   instrument,
		Currency:     currency,
		Provider:     c.Name(),
		IsHistorical: historical,
		Price:        decimal.NewFromFloat(r.Price),
		Open:         decimalPtr(r.OpenPrice),
		High:         decimalPtr(r.HighPrice),
		Low:          decimalPtr(r.LowPrice),
		Close:        decimalPtr(r.PrevClosePrice),
		ChangeAbs:    decimalPtr(r.Ch),
		ChangePct:    decimalPtr(r.Chp),
		ObservedAt:   r.Timestamp,
	}
	// Historical responses missing a timestamp get the requested date from the
	// caller; defaulting to now here would mislabel the observation.
	if q.ObservedAt == 0 && !historical {
		q.ObservedAt = time.Now().Unix()
	}

	if instrument == domain.InstrumentGold {
		grams := make(map[domain.Purity]decimal.Decimal, 3)
		if r.PriceGram24K != nil {
			grams[domain.Purity24K] = decimal.NewFromFloat(*r.PriceGram24K)
		}
		if r.PriceGram22K != nil {
			grams[domain.Purity22K] = decimal.NewFromFloat(*r.PriceGram22K)
		}
		if r.PriceGram18K != nil {
			grams[domain.Purity18K] = decimal.NewFromFloat(*r.PriceGram18K)
		}
		if len(grams) > 0 {
			q.PerGramByPurity = grams
		}
	}

	q.NormalizeKey()
	return q
}

func decimalPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}
