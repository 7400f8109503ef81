// Package energidata is a client for the Energi Data Service dataset API,
// used to fetch hourly electricity spot prices per price area.
package energidata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"powerview/internal/domain"
	"powerview/internal/util"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.energidataservice.dk"

// TransitionDate is the first day served by DayAheadPrices. Earlier prices
// come from Elspotprices.
var TransitionDate = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

// ErrUnknownDataset is returned for a dataset other than auto, elspot or
// dayahead.
var ErrUnknownDataset = errors.New("dataset must be one of: auto, elspot, dayahead")

// datasetInfo names the upstream dataset and the columns requested from it.
var datasetInfo = map[domain.PriceDataset]struct {
	name    string
	columns []string
}{
	domain.DatasetElspot:   {"Elspotprices", []string{"HourUTC", "PriceArea", "SpotPriceDKK", "SpotPriceEUR"}},
	domain.DatasetDayAhead: {"DayAheadPrices", []string{"TimeUTC", "PriceArea", "DayAheadPriceDKK", "DayAheadPriceEUR"}},
}

// ResolveDataset maps a configured dataset name to a dataset. "auto" (or an
// empty name) picks elspot when from is before TransitionDate.
func ResolveDataset(from time.Time, dataset string) (domain.PriceDataset, error) {
	switch strings.ToLower(dataset) {
	case string(domain.DatasetElspot):
		return domain.DatasetElspot, nil
	case string(domain.DatasetDayAhead):
		return domain.DatasetDayAhead, nil
	case "auto", "":
		if domain.TruncateDay(from).Before(TransitionDate) {
			return domain.DatasetElspot, nil
		}
		return domain.DatasetDayAhead, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDataset, dataset)
	}
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("energidata: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is a 429 or 503 response.
func IsRetryable(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	return he.StatusCode == http.StatusTooManyRequests || he.StatusCode == http.StatusServiceUnavailable
}

// Client queries price datasets.
type Client struct {
	http  *resty.Client
	retry util.RetryPolicy
	log   *slog.Logger
}

// NewClient creates a Client. maxAttempts and delay bound GetPricesWithRetry.
func NewClient(baseURL string, maxAttempts int, delay time.Duration, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetHeader("Accept", "application/json"),
		log: log.With("client", "energidata"),
	}
	c.retry = util.RetryPolicy{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Retryable:   IsRetryable,
		OnRetry: func(attempt int, err error) {
			c.log.Warn("rate limited or service unavailable, waiting before retry",
				"wait", delay, "attempt", attempt, "maxAttempts", maxAttempts, "error", err)
		},
	}
	return c
}

// GetPrices queries one dataset for [start, end). An empty areas slice
// requests every price area.
func (c *Client) GetPrices(ctx context.Context, start, end time.Time, areas []string, dataset domain.PriceDataset) (*PriceResponse, error) {
	info, ok := datasetInfo[dataset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, dataset)
	}

	params := map[string]string{
		"start":   util.FormatDate(start),
		"end":     util.FormatDate(end),
		"columns": strings.Join(info.columns, ","),
		"limit":   "0",
	}
	if len(areas) > 0 {
		filter, err := json.Marshal(map[string][]string{"PriceArea": areas})
		if err != nil {
			return nil, fmt.Errorf("encoding area filter: %w", err)
		}
		params["filter"] = string(filter)
	}

	c.log.Info("requesting prices", "dataset", info.name, "start", params["start"], "end", params["end"])

	var out PriceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/dataset/" + info.name)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", info.name, err)
	}
	if resp.IsError() {
		return nil, &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return &out, nil
}

// GetPricesWithRetry resolves dataset against start and calls GetPrices
// under the client's retry policy. The converted prices are returned; rows
// that cannot be converted are logged and skipped.
func (c *Client) GetPricesWithRetry(ctx context.Context, start, end time.Time, areas []string, dataset string) ([]domain.SpotPrice, error) {
	ds, err := ResolveDataset(start, dataset)
	if err != nil {
		return nil, err
	}

	var out *PriceResponse
	err = c.retry.Do(ctx, func() error {
		var err error
		out, err = c.GetPrices(ctx, start, end, areas, ds)
		return err
	})
	if err != nil {
		if IsRetryable(err) {
			c.log.Error("max retries exceeded", "dataset", ds, "start", util.FormatDate(start), "end", util.FormatDate(end))
		}
		return nil, err
	}

	prices := make([]domain.SpotPrice, 0, len(out.Records))
	for _, rec := range out.Records {
		sp, err := rec.SpotPrice(ds)
		if err != nil {
			c.log.Warn("skipping price record", "error", err)
			continue
		}
		prices = append(prices, sp)
	}
	return prices, nil
}
