// Package source reads festival submissions from the NocoDB record API and
// maps them onto canonical events.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/metrics"
)

// FetchError reports a table that could not be read. The pipeline skips the
// table and keeps going with the others.
type FetchError struct {
	Table  Table
	Offset int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s at offset %d: %v", e.Table, e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PageInfo is the pagination block of a list response.
type PageInfo struct {
	TotalRows   int  `json:"totalRows"`
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	IsFirstPage bool `json:"isFirstPage"`
	IsLastPage  bool `json:"isLastPage"`
}

// Page is one list response.
type Page struct {
	List     []json.RawMessage `json:"list"`
	PageInfo PageInfo          `json:"pageInfo"`
}

// ListOptions select a window of a table.
type ListOptions struct {
	Limit  int
	Offset int
	Where  string
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	APIToken      string
	ProjectID     string
	Tables        map[Table]string
	PageSize      int
	MaxPages      int
	RatePerSecond float64
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client lists rows of the festival tables.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Page]
	log     *slog.Logger
}

// New builds a client. Requests are paced by a token bucket and guarded by a
// circuit breaker so a down API fails fast for every remaining table.
func New(cfg Config, log *slog.Logger) *Client {
	log = logger.OrDiscard(log)
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		log:     log,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Page](gobreaker.Settings{
		Name:    "nocodb",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("source circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return c
}

// List fetches one page of table.
func (c *Client) List(ctx context.Context, table Table, opts ListOptions) (*Page, error) {
	tableID, ok := c.cfg.Tables[table]
	if !ok || tableID == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if opts.Limit <= 0 {
		opts.Limit = c.cfg.PageSize
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := c.breaker.Execute(func() (*Page, error) {
			return c.list(ctx, tableID, opts)
		})
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		c.log.Debug("list failed, retrying",
			slog.String("table", string(table)),
			slog.Int("attempt", attempt+1),
			slog.Any("err", err),
		)
	}
	return nil, lastErr
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("source api status %d: %s", e.code, e.body)
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
	}
	var syntax *json.SyntaxError
	return !errors.As(err, &syntax)
}

func (c *Client) list(ctx context.Context, tableID string, opts ListOptions) (*Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	q.Set("offset", strconv.Itoa(opts.Offset))
	if opts.Where != "" {
		q.Set("where", opts.Where)
	}
	endpoint := fmt.Sprintf("%s/api/v1/db/data/noco/%s/%s?%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.ProjectID), url.PathEscape(tableID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("xc-token", c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &statusError{code: res.StatusCode, body: string(body)}
	}

	var page Page
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return &page, nil
}

// FetchAll pages through table until the API reports the end. Each row is
// returned undecoded so callers can detect raw changes.
func (c *Client) FetchAll(ctx context.Context, table Table) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	offset := 0
	for page := 0; ; page++ {
		p, err := c.List(ctx, table, ListOptions{Limit: c.cfg.PageSize, Offset: offset})
		if err != nil {
			metrics.SourceFailures.WithLabelValues(string(table)).Inc()
			return nil, &FetchError{Table: table, Offset: offset, Err: err}
		}
		rows = append(rows, p.List...)

		next, more := NextOffset(p, offset, c.cfg.PageSize, page, len(rows), c.cfg.MaxPages)
		if !more {
			break
		}
		offset = next
	}

	metrics.SourceRecords.WithLabelValues(string(table)).Add(float64(len(rows)))
	c.log.Info("table fetched", slog.String("table", string(table)), slog.Int("rows", len(rows)))
	return rows, nil
}

// NextOffset decides whether another page must be requested. It stops on the
// last-page flag, a short or empty page, once totalRows is reached, or after
// maxPages pages.
func NextOffset(p *Page, offset, limit, page, fetched, maxPages int) (int, bool) {
	n := len(p.List)
	switch {
	case p.PageInfo.IsLastPage:
		return 0, false
	case n == 0:
		return 0, false
	case n < limit:
		return 0, false
	case p.PageInfo.TotalRows > 0 && fetched >= p.PageInfo.TotalRows:
		return 0, false
	case page+1 >= maxPages:
		return 0, false
	}
	return offset + n, true
}
