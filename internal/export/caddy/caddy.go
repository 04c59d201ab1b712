package caddy

import (
	"bytes"
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

	"github.com/cenkalti/backoff/v4"
	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/evanofslack/dns-whitelist-sync/internal/export"
	"github.com/evanofslack/dns-whitelist-sync/internal/metrics"
)

const (
	maxRetries     = 3
	defaultTimeout = 10 * time.Second
)

var ErrNoID = errors.New("matcher id is required")

type Adaptor struct{}

func (Adaptor) Schema(entries []entry.Entry, id string) (Matcher, error) {
	if id == "" {
		return Matcher{}, ErrNoID
	}
	addrs, err := export.Addresses(entries)
	if err != nil {
		return Matcher{}, err
	}
	ranges := make([]string, 0, len(addrs))
	for _, a := range addrs {
		p, err := export.HostPrefix(a)
		if err != nil {
			return Matcher{}, fmt.Errorf("parse address %s: %w", a, err)
		}
		ranges = append(ranges, p)
	}
	return Matcher{ID: id, RemoteIP: RemoteIP{Ranges: ranges}}, nil
}

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client replaces matchers in a running caddy through its admin API.
// Caddy applies the change immediately, no reload needed.
type Client struct {
	adminURL string
	http     Httper
	timeout  time.Duration
	metrics  *metrics.Metrics
	backoff  func() backoff.BackOff
}

// New returns a client whose every admin request is bounded by timeout.
func New(adminURL string, timeout time.Duration, metrics *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		adminURL: strings.TrimSuffix(adminURL, "/"),
		http:     &http.Client{Timeout: timeout},
		timeout:  timeout,
		metrics:  metrics,
		backoff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

func (c *Client) Save(ctx context.Context, m Matcher, id string) error {
	if id == "" {
		return ErrNoID
	}
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode matcher: %w", err)
	}
	endpoint := c.adminURL + "/id/" + url.PathEscape(id)

	op := func() error {
		return c.patch(ctx, endpoint, body)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), maxRetries), ctx)
	if err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		slog.Warn("Caddy admin request failed, retrying", "id", id, "wait", wait, "error", err)
	}); err != nil {
		return fmt.Errorf("update caddy matcher %s: %w", id, err)
	}
	slog.Debug("Updated caddy matcher", "id", id, "ranges", len(m.RemoteIP.Ranges))
	return nil
}

func (c *Client) patch(ctx context.Context, endpoint string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.IncCaddyRequest(false, 0)
		return err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	c.metrics.IncCaddyRequest(ok, resp.StatusCode)
	if ok {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = fmt.Errorf("caddy api request, status=%d, body=%s", resp.StatusCode, bytes.TrimSpace(msg))
	if resp.StatusCode < http.StatusInternalServerError {
		return backoff.Permanent(err)
	}
	return err
}
