package gatherer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html/charset"

	"github.com/foomo/gatherer/vo"
)

const maxBodyBytes = int64(10 * 1024 * 1024)

// FetcherOptions configures retry behavior and the per-fetch timeout.
type FetcherOptions struct {
	Agent          string
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

// Fetcher performs paced, retryable GETs. A non-2xx status is recorded
// verbatim; only network failures and 5xx are retried, 4xx is terminal
// after one attempt. Fetch never panics or aborts the crawl — failures
// come back as data on the FetchResult.
type Fetcher struct {
	client *http.Client
	opts   FetcherOptions
	gate   *PolicyGate
	pacer  *HostPacer
	l      *slog.Logger
}

func NewFetcher(opts FetcherOptions, gate *PolicyGate, pacer *HostPacer, l *slog.Logger) *Fetcher {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if l == nil {
		l = slog.Default()
	}
	client := &http.Client{
		Timeout: opts.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: opts.RequestTimeout,
			}).DialContext,
			TLSHandshakeTimeout: opts.RequestTimeout,
		},
	}
	return &Fetcher{
		client: client,
		opts:   opts,
		gate:   gate,
		pacer:  pacer,
		l:      l,
	}
}

// Fetch gets one target. It waits out the host's pacing window first and
// stamps the next window afterwards, success or failure, so errors never
// turn into a retry storm against the host.
func (f *Fetcher) Fetch(ctx context.Context, target vo.Target) vo.FetchResult {
	result := vo.FetchResult{
		Target: target,
		Time:   time.Now(),
	}

	if errWait := f.pacer.Wait(ctx, target.Host); errWait != nil {
		result.Error = errWait.Error()
		return result
	}
	defer f.pacer.Mark(target.Host, f.gate.CrawlDelay(target.Host))

	start := time.Now()
	attempts := 0

	operation := func() error {
		attempts++
		code, status, contentType, body, errAttempt := f.get(ctx, target.URL)
		result.Code = code
		result.Status = status
		result.ContentType = contentType
		result.Body = body
		if errAttempt == nil {
			return nil
		}
		if !retryable(errAttempt) {
			return backoff.Permanent(errAttempt)
		}
		f.l.Debug("fetch attempt failed",
			"url", target.URL,
			"attempt", attempts,
			"err", errAttempt)
		return errAttempt
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.opts.BackoffBase
	policy.MaxInterval = f.opts.BackoffMax
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	errFetch := backoff.Retry(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.opts.MaxRetries)), ctx),
	)

	result.Duration = time.Since(start)
	result.Attempts = attempts
	if errFetch != nil {
		if permanent, ok := errFetch.(*backoff.PermanentError); ok {
			errFetch = permanent.Err
		}
		result.Error = errFetch.Error()
		f.pacer.Fail(target.Host)
		return result
	}
	f.pacer.Recover(target.Host)
	return result
}

// get performs one attempt. 2xx returns the decoded body, 4xx returns a
// TerminalHTTPError, 5xx a TransientHTTPError, both with the status kept
// on the result by the caller.
func (f *Fetcher) get(ctx context.Context, targetURL string) (code int, status, contentType string, body []byte, err error) {
	req, errRequest := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if errRequest != nil {
		return 0, "", "", nil, errRequest
	}
	req.Header.Set("User-Agent", f.opts.Agent)

	resp, errGet := f.client.Do(req)
	if errGet != nil {
		return 0, "", "", nil, errGet
	}
	defer resp.Body.Close()

	code = resp.StatusCode
	status = resp.Status
	contentType = resp.Header.Get("Content-Type")

	switch {
	case code >= 500:
		return code, status, contentType, nil, &TransientHTTPError{Code: code}
	case code >= 400:
		return code, status, contentType, nil, &TerminalHTTPError{Code: code}
	}

	reader, errCharset := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), contentType)
	if errCharset != nil {
		return code, status, contentType, nil, fmt.Errorf("decode body of %s: %w", targetURL, errCharset)
	}
	bodyBytes, errRead := io.ReadAll(reader)
	if errRead != nil {
		return code, status, contentType, nil, fmt.Errorf("read body of %s: %w", targetURL, errRead)
	}
	return code, status, contentType, bodyBytes, nil
}
