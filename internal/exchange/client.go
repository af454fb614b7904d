package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var errRateMissing = errors.New("conversion rate missing in response")

// RateAPIClient is a client for the exchangerate-api latest-rates endpoint
// (GET {base}/v4/latest/{from}).
type RateAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

type ratesResponse struct {
	Base  string                 `json:"base"`
	Date  string                 `json:"date"`
	Rates map[string]json.Number `json:"rates"`
}

func NewRateAPIClient(baseURL string, timeout time.Duration) *RateAPIClient {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = "https://api.exchangerate-api.com"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &RateAPIClient{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *RateAPIClient) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == "" || to == "" {
		return decimal.Decimal{}, errors.New("from and to currencies are required")
	}

	endpoint := fmt.Sprintf("%s/v4/latest/%s", c.baseURL, url.PathEscape(from))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to create rate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to request rates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()

	var payload ratesResponse
	if err := decoder.Decode(&payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to decode rates response: %w", err)
	}

	rateStr, ok := payload.Rates[to]
	if !ok {
		return decimal.Decimal{}, errRateMissing
	}

	rate, err := decimal.NewFromString(rateStr.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse rate: %w", err)
	}
	if !rate.IsPositive() {
		return decimal.Decimal{}, errors.New("conversion rate must be positive")
	}

	return rate, nil
}
