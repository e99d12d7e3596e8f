package gatherer

import (
	"context"
	"errors"
	"fmt"
)

// ErrPolicyUnavailable means the robots resource of a host could not be
// fetched. The gate then answers deny for everything on that host except
// explicitly seeded URLs, never allow-all.
var ErrPolicyUnavailable = errors.New("robots policy unavailable")

// MalformedSitemapError reports unparseable sitemap XML. The driver drops
// the source and keeps crawling.
type MalformedSitemapError struct {
	URL string
	Err error
}

func (e *MalformedSitemapError) Error() string {
	return fmt.Sprintf("malformed sitemap %s: %v", e.URL, e.Err)
}

func (e *MalformedSitemapError) Unwrap() error { return e.Err }

// MalformedPageError reports an HTML document goquery could not read.
type MalformedPageError struct {
	URL string
	Err error
}

func (e *MalformedPageError) Error() string {
	return fmt.Sprintf("malformed page %s: %v", e.URL, e.Err)
}

func (e *MalformedPageError) Unwrap() error { return e.Err }

// TerminalHTTPError is a 4xx response. Repeating the request will not make
// the resource available, so it is never retried.
type TerminalHTTPError struct {
	Code int
}

func (e *TerminalHTTPError) Error() string {
	return fmt.Sprintf("terminal http status %d", e.Code)
}

// TransientHTTPError is a 5xx response, retried with backoff up to the
// configured attempt cap.
type TransientHTTPError struct {
	Code int
}

func (e *TransientHTTPError) Error() string {
	return fmt.Sprintf("transient http status %d", e.Code)
}

// retryable classifies a fetch attempt error. Network level failures and
// 5xx are transient, 4xx and context cancellation are not.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var terminal *TerminalHTTPError
	return !errors.As(err, &terminal)
}
