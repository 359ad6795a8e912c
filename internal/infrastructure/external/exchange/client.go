package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Config holds exchange client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client implements port.ExchangeRateGateway against an exchangerate-api
// style endpoint (GET {base}/v4/latest/{CODE} returning a rates table).
// Rate tables are cached per base currency for CacheTTL so repeated
// submissions in the same pair do not hammer the remote service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	ttl        time.Duration
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry

	// now is swappable in tests to exercise cache expiry.
	now func() time.Time
}

type cacheEntry struct {
	rates     map[string]decimal.Decimal
	fetchedAt time.Time
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// NewClient creates a new exchange rate client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		ttl:        cfg.CacheTTL,
		logger:     logger,
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}
}

// Rate resolves the rate for one unit of from in to. A stale or missing
// table is fetched with one retry; persistent failure surfaces as
// entity.ErrCurrencyUnavailable so callers can refuse the submission
// instead of storing a wrong amount.
func (c *Client) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.New(1, 0), nil
	}

	rates, ok := c.cachedRates(from)
	if !ok {
		var err error
		rates, err = c.fetchRates(ctx, from)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("rate %s/%s: %w: %v", from, to, entity.ErrCurrencyUnavailable, err)
		}
		c.storeRates(from, rates)
	}

	rate, ok := rates[to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("rate %s/%s: no quote for target: %w", from, to, entity.ErrCurrencyUnavailable)
	}
	return rate, nil
}

func (c *Client) cachedRates(base string) (map[string]decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.cache[base]
	if !ok || c.now().Sub(entry.fetchedAt) > c.ttl {
		return nil, false
	}
	return entry.rates, true
}

func (c *Client) storeRates(base string, rates map[string]decimal.Decimal) {
	c.mu.Lock()
	c.cache[base] = cacheEntry{rates: rates, fetchedAt: c.now()}
	c.mu.Unlock()
}

func (c *Client) fetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying rate fetch", zap.String("base", base), zap.Error(lastErr))
		}
		rates, err := c.fetchOnce(ctx, base)
		if err == nil {
			return rates, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/v4/latest/%s", c.baseURL, base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate service returned status %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("rate service returned empty table for %s", base)
	}

	rates := make(map[string]decimal.Decimal, len(body.Rates))
	for code, rate := range body.Rates {
		rates[code] = decimal.NewFromFloat(rate)
	}
	return rates, nil
}

// Verify interface compliance
var _ port.ExchangeRateGateway = (*Client)(nil)
