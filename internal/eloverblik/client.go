// Package eloverblik is a client for the Eloverblik customer API: token
// exchange, metering point listing and hourly time-series retrieval.
package eloverblik

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"powerview/internal/util"
)

// DefaultBaseURL is the production customer API root.
const DefaultBaseURL = "https://api.eloverblik.dk/CustomerApi"

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("eloverblik: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err signals rate limiting (429) or service
// unavailability (503). Every other error is permanent.
func IsRetryable(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	return he.StatusCode == http.StatusTooManyRequests || he.StatusCode == http.StatusServiceUnavailable
}

// Client talks to the Eloverblik customer API.
type Client struct {
	http    *resty.Client
	limiter *util.RateLimiter
	retry   util.RetryPolicy
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the attempt bound and fixed delay for the *WithRetry calls.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = maxAttempts
		c.retry.Delay = delay
	}
}

// WithRateLimit limits outgoing requests to perMinute. Zero disables it.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) { c.limiter = util.NewRateLimiter(perMinute) }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a Client for baseURL. By default calls made through the
// *WithRetry methods are attempted three times, 60 seconds apart, on 429 and
// 503 responses.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json"),
		retry: util.RetryPolicy{MaxAttempts: 3, Delay: 60 * time.Second},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("client", "eloverblik")
	c.retry.Retryable = IsRetryable
	c.retry.OnRetry = func(attempt int, err error) {
		c.log.Warn("rate limited or service unavailable, waiting before retry",
			"wait", c.retry.Delay, "attempt", attempt, "maxAttempts", c.retry.MaxAttempts, "error", err)
	}
	return c
}

// GetToken exchanges a refresh token for a short-lived access token.
func (c *Client) GetToken(ctx context.Context, refreshToken string) (string, error) {
	var out tokenResponse
	if err := c.do(ctx, c.http.R().
		SetAuthToken(refreshToken).
		SetResult(&out), http.MethodPost, "/api/token"); err != nil {
		return "", fmt.Errorf("requesting access token: %w", err)
	}
	if out.Result == "" {
		return "", errors.New("requesting access token: empty token in response")
	}
	c.log.Info("obtained access token")
	return out.Result, nil
}

// GetMeteringPoints lists the metering points available to the token holder.
func (c *Client) GetMeteringPoints(ctx context.Context, token string) (*MeteringPointsResponse, error) {
	var out MeteringPointsResponse
	if err := c.do(ctx, c.http.R().
		SetAuthToken(token).
		SetResult(&out), http.MethodGet, "/api/meteringpoints/meteringpoints"); err != nil {
		return nil, fmt.Errorf("listing metering points: %w", err)
	}
	return &out, nil
}

// GetMeterData fetches hourly time series for [from, to]. With no IDs the
// API returns every metering point the caller can access.
func (c *Client) GetMeterData(ctx context.Context, token string, from, to time.Time, meteringPointIDs []string) (*MeterDataResponse, error) {
	body := meterDataRequest{}
	body.MeteringPoints.MeteringPoint = meteringPointIDs
	if body.MeteringPoints.MeteringPoint == nil {
		body.MeteringPoints.MeteringPoint = []string{}
	}

	path := fmt.Sprintf("/api/meterdata/gettimeseries/%s/%s/Hour", util.FormatDate(from), util.FormatDate(to))
	c.log.Info("requesting meter data", "from", util.FormatDate(from), "to", util.FormatDate(to), "aggregation", "Hour")

	var out MeterDataResponse
	if err := c.do(ctx, c.http.R().
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("api-version", "1.0").
		SetBody(body).
		SetResult(&out), http.MethodPost, path); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMeterDataWithRetry is GetMeterData under the client's retry policy.
func (c *Client) GetMeterDataWithRetry(ctx context.Context, token string, from, to time.Time, meteringPointIDs []string) (*MeterDataResponse, error) {
	var out *MeterDataResponse
	err := c.retry.Do(ctx, func() error {
		var err error
		out, err = c.GetMeterData(ctx, token, from, to, meteringPointIDs)
		return err
	})
	if err != nil {
		if IsRetryable(err) {
			c.log.Error("max retries exceeded", "from", util.FormatDate(from), "to", util.FormatDate(to))
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, req *resty.Request, method, path string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &HTTPError{StatusCode: resp.StatusCode(), Status: resp.Status(), Body: resp.String()}
	}
	return nil
}
