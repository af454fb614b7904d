package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// CountriesClient fetches the currency-code list from the restcountries API
// and answers "is this a known currency code". The list changes rarely, so it
// is cached on the struct with a TTL.
type CountriesClient struct {
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration

	mu        sync.RWMutex
	codes     map[string]bool
	fetchedAt time.Time
}

type countryEntry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	Currencies map[string]struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"currencies"`
}

func NewCountriesClient(baseURL string, timeout, ttl time.Duration) *CountriesClient {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = "https://restcountries.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &CountriesClient{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: timeout},
		ttl:        ttl,
	}
}

// IsSupported reports whether code appears in the currency list.
func (c *CountriesClient) IsSupported(ctx context.Context, code string) (bool, error) {
	codes, err := c.currencyCodes(ctx)
	if err != nil {
		return false, err
	}
	return codes[strings.ToUpper(strings.TrimSpace(code))], nil
}

func (c *CountriesClient) currencyCodes(ctx context.Context) (map[string]bool, error) {
	c.mu.RLock()
	if c.codes != nil && time.Since(c.fetchedAt) < c.ttl {
		codes := c.codes
		c.mu.RUnlock()
		return codes, nil
	}
	c.mu.RUnlock()

	endpoint := c.baseURL + "/v3.1/all?fields=name,currencies"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create countries request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request countries: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("countries API returned status %d", resp.StatusCode)
	}

	var entries []countryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode countries response: %w", err)
	}

	codes := make(map[string]bool)
	for _, entry := range entries {
		for code := range entry.Currencies {
			codes[strings.ToUpper(code)] = true
		}
	}

	c.mu.Lock()
	c.codes = codes
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return codes, nil
}
