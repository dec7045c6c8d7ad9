// Package fetch wraps a single source's page retrieval with rate limiting,
// bounded exponential-backoff retries, and a hard per-attempt timeout.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"jobtally/internal/model"
)

// Page is the result of one successful fetch. An empty body with a 2xx
// status is a legitimate "no new postings" response, not a failure.
type Page struct {
	StatusCode int
	Body       []byte
}

// FetchFunc performs one attempt of a fetch. It must be idempotent: the
// executor may call it several times for the same logical request.
type FetchFunc func(ctx context.Context) (*Page, error)

// Executor executes fetches for one source. All requests for the same source
// share the executor's limiter, so the configured minimum inter-request
// interval holds across pages and across retries.
type Executor struct {
	source     string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
	userAgent  string
	logger     *slog.Logger
}

// Options configures an Executor. Zero values fall back to the defaults
// documented on each field.
type Options struct {
	MinInterval time.Duration // minimum gap between requests (default 2s)
	MaxRetries  int           // additional attempts after the first failure (default 2)
	BaseDelay   time.Duration // delay before the first retry, doubled after (default 5s)
	Timeout     time.Duration // hard timeout per attempt (default 30s)
	UserAgent   string
	Client      *http.Client
}

// NewExecutor creates an executor for the named source.
func NewExecutor(source string, opts Options, logger *slog.Logger) *Executor {
	if opts.MinInterval <= 0 {
		opts.MinInterval = 2 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &Executor{
		source:     source,
		client:     opts.Client,
		limiter:    rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		timeout:    opts.Timeout,
		userAgent:  opts.UserAgent,
		logger:     logger,
	}
}

// Source returns the name of the source this executor serves.
func (e *Executor) Source() string { return e.source }

// Execute runs fn under the executor's rate limit, timeout, and retry
// policy. On exhaustion it returns a *model.FetchError carrying the attempt
// count and the last underlying cause.
func (e *Executor) Execute(ctx context.Context, fn FetchFunc) (*Page, error) {
	attempts := 0
	var lastErr error

	for attempts <= e.maxRetries {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &model.FetchError{Source: e.source, Attempts: attempts, Err: err}
		}

		attempts++
		page, err := e.attempt(ctx, fn)
		if err == nil {
			return page, nil
		}
		lastErr = err

		// The caller's context ending is final; an attempt-level deadline is
		// just a timed-out try and falls through to the retry policy.
		if ctx.Err() != nil {
			return nil, &model.FetchError{Source: e.source, Attempts: attempts, Err: err}
		}
		if !isRetryable(err) {
			return nil, &model.FetchError{Source: e.source, Attempts: attempts, Err: err}
		}
		if attempts > e.maxRetries {
			break
		}

		delay := e.backoffDelay(attempts, err)
		e.logger.Warn("retrying after transient error",
			"source", e.source,
			"attempt", attempts,
			"max_retries", e.maxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, &model.FetchError{Source: e.source, Attempts: attempts, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	return nil, &model.FetchError{Source: e.source, Attempts: attempts, Err: lastErr}
}

// attempt runs fn once under the per-attempt timeout.
func (e *Executor) attempt(ctx context.Context, fn FetchFunc) (*Page, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return fn(attemptCtx)
}

// Get fetches the given URL through Execute. Non-2xx responses come back as
// *model.HTTPError so the retry policy can classify them.
func (e *Executor) Get(ctx context.Context, url string) (*Page, error) {
	return e.Execute(ctx, func(ctx context.Context) (*Page, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if e.userAgent != "" {
			req.Header.Set("User-Agent", e.userAgent)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &model.HTTPError{
				StatusCode: resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Err:        fmt.Errorf("GET %s", url),
			}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &Page{StatusCode: resp.StatusCode, Body: body}, nil
	})
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (e *Executor) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := e.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	// Apply ±30% jitter
	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	return delay
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Caller cancellation: never retry. A DeadlineExceeded reaching here is
	// the per-attempt timeout (Execute already checked the outer context),
	// which is a transient failure.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 Too Many Requests: retryable.
		if httpErr.StatusCode == 429 {
			return true
		}
		// 5xx: retryable.
		if httpErr.StatusCode >= 500 {
			return true
		}
		// Other 4xx: not retryable.
		return false
	}

	// A ParseError means the page structure changed; retrying will not help.
	var parseErr *model.ParseError
	if errors.As(err, &parseErr) {
		return false
	}

	// Non-HTTP errors (network, DNS, etc.): retryable.
	return true
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
