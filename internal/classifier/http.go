// Package classifier holds the adapters for external text and image
// classification services.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	maxResponseBytes = 1 << 20
	defaultRetries   = 2
)

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Code)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// jsonClient posts JSON to a provider behind a circuit breaker with a short
// bounded retry for transient answers.
type jsonClient struct {
	provider string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	retries  uint64
	log      *zap.Logger
}

func newJSONClient(provider string, httpClient *http.Client, log *zap.Logger) *jsonClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("provider", provider))
	return &jsonClient{
		provider: provider,
		http:     httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        provider,
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("Circuit breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}),
		retries: defaultRetries,
		log:     log,
	}
}

// postJSON sends body to url and decodes the response into out.
func (c *jsonClient) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.provider, err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		bo := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), c.retries), ctx)
		return nil, backoff.Retry(func() error {
			return c.do(ctx, url, headers, payload, out)
		}, bo)
	})
	return err
}

func (c *jsonClient) do(ctx context.Context, url string, headers map[string]string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%s: build request: %w", c.provider, err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("%s: request failed: %w", c.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		serr := &StatusError{Provider: c.provider, Code: resp.StatusCode}
		if serr.retryable() {
			return serr
		}
		return backoff.Permanent(serr)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("%s: malformed response: %w", c.provider, err))
	}
	return nil
}

func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second
	return bo
}
