// Package httpx holds a small retrying HTTP client used to probe the API's
// health endpoints.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Client struct {
	HTTP       *http.Client
	MaxElapsed time.Duration
}

// DoJSON sends req, retrying transport errors and 5xx responses. Other non-2xx
// statuses fail at once. A nil out skips decoding.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) error {
	if c.HTTP == nil {
		c.HTTP = http.DefaultClient
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = 3 * time.Second
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 1 * time.Second
	exp.MaxElapsedTime = c.MaxElapsed

	op := func() error {
		resp, err := c.HTTP.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode: %w", err))
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(exp, ctx))
}

// WaitReady polls <baseURL>/readyz until it answers 2xx or the retry budget runs out.
func (c *Client) WaitReady(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/readyz", nil)
	if err != nil {
		return err
	}
	if err := c.DoJSON(ctx, req, nil); err != nil {
		return fmt.Errorf("wait ready: %w", err)
	}
	return nil
}
