// Package rates fetches exchange rates from an exchangerate-api compatible
// endpoint and performs decimal conversions.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/metrics"
	"github.com/m3rciful/currencybot/core/netutil"
	"github.com/shopspring/decimal"
)

const (
	// DefaultBaseURL is the public endpoint queried as {base}/{SOURCE}.
	DefaultBaseURL = "https://api.exchangerate-api.com/v4/latest"
	// DefaultTimeout bounds a single lookup.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// Source provides the rate for converting one unit of source into target.
type Source interface {
	Rate(ctx context.Context, source, target string) (decimal.Decimal, error)
}

// Table is the decoded latest-rates document.
type Table struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *metrics.Registry
}

// Client queries the rates API. It makes exactly one attempt per lookup.
type Client struct {
	base    string
	timeout time.Duration
	http    *http.Client
	metrics *metrics.Registry
}

// New builds a Client; the HTTP client defaults to netutil's with retries off.
func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = netutil.BuildHTTPClient(netutil.ClientOptions{Timeout: timeout, ResponseTimeout: timeout})
	}
	return &Client{base: base, timeout: timeout, http: hc, metrics: opts.Metrics}
}

// Latest fetches every rate quoted against source.
func (c *Client) Latest(ctx context.Context, source string) (Table, error) {
	return c.latest(ctx, strings.ToUpper(strings.TrimSpace(source)), "")
}

// Rate returns the multiplier converting one unit of source into target.
func (c *Client) Rate(ctx context.Context, source, target string) (decimal.Decimal, error) {
	source = strings.ToUpper(strings.TrimSpace(source))
	target = strings.ToUpper(strings.TrimSpace(target))
	start := time.Now()

	table, err := c.latest(ctx, source, target)
	if err == nil {
		rate, ok := table.Rates[target]
		if !ok {
			err = &LookupError{Source: source, Target: target, Kind: KindMissingRate}
		} else {
			c.observe(ctx, source, target, start, nil)
			return rate, nil
		}
	}
	c.observe(ctx, source, target, start, err)
	return decimal.Zero, err
}

func (c *Client) latest(ctx context.Context, source, target string) (Table, error) {
	fail := func(kind Kind, err error) (Table, error) {
		return Table{}, &LookupError{Source: source, Target: target, Kind: kind, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.base + "/" + url.PathEscape(source)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fail(KindNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fail(KindStatus, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var table Table
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&table); err != nil {
		return fail(KindDecode, err)
	}
	if table.Rates == nil {
		return fail(KindDecode, fmt.Errorf("response has no rates"))
	}
	return table, nil
}

func (c *Client) observe(ctx context.Context, source, target string, start time.Time, err error) {
	took := logger.Took(start)
	result := "ok"
	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.String("source", source),
		slog.String("target", target),
		slog.Duration("took", logger.RoundMS(took)),
	}
	var le *LookupError
	if errors.As(err, &le) {
		result = string(le.Kind)
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("err_code", "LOOKUP_ERROR"), slog.String("err", le.Error()))
	}
	attrs = append(attrs, slog.String("status", logger.Status(err)))
	logger.LogEvent(ctx, logger.Rates, level, "rates.lookup", attrs...)
	c.metrics.RateLookup(result, took)
}
