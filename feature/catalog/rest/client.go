// Package rest reads records and changes from the REST catalog API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"holdings-sync/feature/catalog"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is a rate limited JSON client guarded by a circuit breaker.
type Client struct {
	baseURL  string
	tenant   string
	token    string
	pageSize int

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a client from the catalog configuration.
func NewClient(cfg catalog.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenant:   cfg.Tenant,
		token:    cfg.Token,
		pageSize: pageSize,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "catalog-rest",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, catalog.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// Get requests path with query and decodes the JSON response into out.
// A 404 response returns catalog.ErrNotFound.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, path, query, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.tenant != "" {
		req.Header.Set("X-Okapi-Tenant", c.tenant)
	}
	if c.token != "" {
		req.Header.Set("X-Okapi-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return catalog.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: unexpected status code %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// GetAll pages through a collection endpoint. key names the array in each page.
func GetAll[T any](ctx context.Context, c *Client, path, cql, key string) ([]T, error) {
	var all []T
	for offset := 0; ; offset += c.pageSize {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(c.pageSize))
		q.Set("offset", fmt.Sprint(offset))
		if cql != "" {
			q.Set("query", cql)
		}

		var page map[string]json.RawMessage
		if err := c.Get(ctx, path, q, &page); err != nil {
			return nil, err
		}
		var records []T
		if raw, ok := page[key]; ok {
			if err := json.Unmarshal(raw, &records); err != nil {
				return nil, fmt.Errorf("failed to decode %s of %s: %w", key, path, err)
			}
		}
		all = append(all, records...)
		if len(records) < c.pageSize {
			return all, nil
		}
	}
}

// cqlTime formats a timestamp for CQL range queries on metadata dates.
func cqlTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// cqlAny builds "field==(a or b)" for exact matches on several ids.
func cqlAny(field string, ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = `"` + strings.ReplaceAll(id, `"`, `\"`) + `"`
	}
	return fmt.Sprintf("%s==(%s)", field, strings.Join(quoted, " or "))
}
