// pkg/coingecko/client.go
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

var (
	ErrNoPrice = errors.New("no price data")
	// errClient marks 4xx answers other than 429, which are not worth retrying.
	errClient = errors.New("client error")
)

type Client struct {
	baseURL    string
	currency   string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
	log        *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

// NewClient builds a price client quoting in currency (e.g. "EUR").
func NewClient(baseURL, currency string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		currency:   strings.ToLower(currency),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		attempts:   3,
		delay:      500 * time.Millisecond,
		log:        logging.Named("coingecko"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Price returns the price of one coin in the configured currency.
func (c *Client) Price(ctx context.Context, coinID string) (float64, error) {
	var price float64
	err := retry.Do(
		func() error {
			p, err := c.fetch(ctx, coinID)
			if err != nil {
				return err
			}
			price = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrNoPrice) && !errors.Is(err, errClient)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("Retrying price request", zap.String("coin", coinID), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		c.log.Error("Failed to fetch price", zap.String("coin", coinID), zap.Error(err))
		return 0, err
	}

	c.log.Debug("Fetched price", zap.String("coin", coinID), zap.Float64("price", price), zap.String("currency", c.currency))
	return price, nil
}

func (c *Client) fetch(ctx context.Context, coinID string) (float64, error) {
	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", c.currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return 0, fmt.Errorf("%w: status %d", errClient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}

	price, ok := body[coinID][c.currency]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("%w for %s in %s", ErrNoPrice, coinID, c.currency)
	}
	return price, nil
}
