package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/askcam-lab/internal/logging"
)

// Reply is a fully read HTTP response.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
}

// RetryPolicy controls PostWithRetries. Backoff doubles after every failed
// attempt.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// PostWithRetries posts body to url, retrying transport errors and 5xx
// responses with exponential backoff. 4xx responses are returned without
// retrying. The body is read before the per-attempt timeout is released.
func PostWithRetries(ctx context.Context, client *http.Client, url, contentType string, body []byte, header http.Header, p RetryPolicy) (*Reply, error) {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if client == nil {
		client = http.DefaultClient
	}
	var lastErr error
	for i := 0; i < p.Attempts; i++ {
		if i > 0 {
			wait := p.Backoff * time.Duration(1<<(i-1))
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
		reply, err := postOnce(ctx, client, url, contentType, body, header, p.Timeout)
		if err != nil {
			lastErr = err
			logging.DebugwCtx(ctx, "post attempt failed", "url", url, "attempt", i+1, "err", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if reply.Status >= 500 {
			lastErr = fmt.Errorf("server error status=%d", reply.Status)
			logging.WarnwCtx(ctx, "server error", "url", url, "status", reply.Status, "attempt", i+1)
			continue
		}
		return reply, nil
	}
	return nil, lastErr
}

func postOnce(ctx context.Context, client *http.Client, url, contentType string, body []byte, header http.Header, timeout time.Duration) (*Reply, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if cid := logging.CorrelationID(ctx); cid != "" {
		req.Header.Set("X-Correlation-ID", cid)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Reply{Status: resp.StatusCode, Header: resp.Header, Body: b}, nil
}
