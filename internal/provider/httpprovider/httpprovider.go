// Package httpprovider fetches ads from the listings HTTP API.
package httpprovider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/config"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/observability"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/listings"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/provider"
)

func init() {
	provider.Register("http", func(cfg config.ProviderCfg, logger *slog.Logger) (provider.Interface, error) {
		h := http.Header{}
		if cfg.Token != "" {
			h.Set("Authorization", "Bearer "+cfg.Token)
		}
		if cfg.UserAgent != "" {
			h.Set("User-Agent", cfg.UserAgent)
		}
		return New(logger, httpclient.NewOutbound(cfg.Timeout, h), cfg.URL)
	})
}

const maxErrBody = 8 << 10

type Client struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL *url.URL
}

func New(logger *slog.Logger, client *http.Client, base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse provider url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("provider url %q must be absolute", base)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		logger:  logger,
		client:  client,
		baseURL: u,
	}, nil
}

func Params(region model.Region, limit int) url.Values {
	v := url.Values{}
	v.Set("north", strconv.FormatFloat(region.North, 'f', -1, 64))
	v.Set("south", strconv.FormatFloat(region.South, 'f', -1, 64))
	v.Set("east", strconv.FormatFloat(region.East, 'f', -1, 64))
	v.Set("west", strconv.FormatFloat(region.West, 'f', -1, 64))
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	return v
}

func (c *Client) FetchAds(ctx context.Context, region model.Region, limit int) ([]listings.RawAd, error) {
	u := *c.baseURL
	q := u.Query()
	for k, vs := range Params(region, limit) {
		q[k] = vs
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("provider", dur.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	raws, malformed, err := listings.DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("decode ads: %w", err)
	}
	if malformed > 0 {
		observability.AddRecordsDropped(string(listings.DropMalformed), malformed)
		c.logger.WarnContext(ctx, "provider returned malformed records", "count", malformed)
	}
	provider.WarnIfCapped(ctx, c.logger, region, len(raws)+malformed, limit)

	c.logger.Debug("provider fetch done",
		"region", region.String(),
		"limit", limit,
		"records", len(raws),
		"duration", dur.String())
	return raws, nil
}
