package gatherer

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateSettings caps request throughput per host with a token bucket, on
// top of the crawl delay. Zero values disable the bucket.
type RateSettings struct {
	Requests int
	Window   time.Duration
}

// HostPacer tracks per-host pacing state: the next allowed fetch time, a
// consecutive failure count and an optional token bucket. All access is
// mutex guarded so a future one-in-flight-fetch-per-host extension does
// not change the contract.
type HostPacer struct {
	rateCfg     RateSettings
	rateEnabled bool

	mu       sync.Mutex
	next     map[string]time.Time
	failures map[string]int
	limiters map[string]*rate.Limiter
}

func NewHostPacer(rateCfg RateSettings) *HostPacer {
	p := &HostPacer{
		next:     map[string]time.Time{},
		failures: map[string]int{},
	}
	if rateCfg.Requests > 0 && rateCfg.Window > 0 {
		p.rateEnabled = true
		p.rateCfg = rateCfg
		p.limiters = map[string]*rate.Limiter{}
	}
	return p
}

// ReadyAt returns when the host may be fetched next. The zero time means
// the host has no pacing window yet.
func (p *HostPacer) ReadyAt(host string) time.Time {
	host = strings.ToLower(host)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next[host]
}

// Wait blocks until the host's pacing window has passed and, if enabled,
// the token bucket admits a request. Cancellation aborts the wait.
func (p *HostPacer) Wait(ctx context.Context, host string) error {
	host = strings.ToLower(host)

	var sleep time.Duration
	var limiter *rate.Limiter

	p.mu.Lock()
	if until, ok := p.next[host]; ok {
		if rest := time.Until(until); rest > 0 {
			sleep = rest
		}
	}
	if p.rateEnabled {
		limiter = p.ensureLimiterLocked(host)
	}
	p.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Mark stamps the host's next allowed fetch time. Called after every
// fetch, success or failure, so errors do not turn into retry storms.
func (p *HostPacer) Mark(host string, delay time.Duration) {
	host = strings.ToLower(host)
	p.mu.Lock()
	p.next[host] = time.Now().Add(delay)
	p.mu.Unlock()
}

// Fail increments the host's consecutive failure count.
func (p *HostPacer) Fail(host string) int {
	host = strings.ToLower(host)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[host]++
	return p.failures[host]
}

// Recover resets the host's consecutive failure count.
func (p *HostPacer) Recover(host string) {
	host = strings.ToLower(host)
	p.mu.Lock()
	delete(p.failures, host)
	p.mu.Unlock()
}

// Failures returns the host's consecutive failure count.
func (p *HostPacer) Failures(host string) int {
	host = strings.ToLower(host)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[host]
}

func (p *HostPacer) ensureLimiterLocked(host string) *rate.Limiter {
	if limiter, ok := p.limiters[host]; ok {
		return limiter
	}
	interval := p.rateCfg.Window / time.Duration(p.rateCfg.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), p.rateCfg.Requests)
	p.limiters[host] = limiter
	return limiter
}
