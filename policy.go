package gatherer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

type hostPolicy struct {
	group       *robotstxt.Group
	delay       time.Duration
	sitemaps    []string
	unavailable bool
}

// PolicyGate loads and caches robots.txt per host for the lifetime of one
// crawl and answers allow/deny plus the crawl delay to honor.
//
// When robots.txt cannot be fetched the gate does not fail open: every URL
// on that host is denied except the ones explicitly seeded.
type PolicyGate struct {
	client *http.Client
	agent  string
	floor  time.Duration

	mu    sync.RWMutex
	hosts map[string]*hostPolicy
	seeds map[string]struct{}
}

func NewPolicyGate(client *http.Client, agent string, floor time.Duration) *PolicyGate {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if floor <= 0 {
		floor = time.Second
	}
	return &PolicyGate{
		client: client,
		agent:  agent,
		floor:  floor,
		hosts:  map[string]*hostPolicy{},
		seeds:  map[string]struct{}{},
	}
}

// AddSeed marks a normalized URL as explicitly seeded. Seeds stay
// fetchable under the deny-all fallback.
func (g *PolicyGate) AddSeed(normalizedURL string) {
	g.mu.Lock()
	g.seeds[normalizedURL] = struct{}{}
	g.mu.Unlock()
}

// Load fetches /robots.txt for scheme://host and caches the parsed rules.
// A 4xx robots response means no restrictions. Network failures and 5xx
// responses yield ErrPolicyUnavailable and the conservative fallback.
func (g *PolicyGate) Load(ctx context.Context, scheme, host string) error {
	g.mu.RLock()
	_, done := g.hosts[host]
	g.mu.RUnlock()
	if done {
		return nil
	}

	robotsURL := scheme + "://" + host + "/robots.txt"
	req, errRequest := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if errRequest != nil {
		return g.markUnavailable(host, errRequest)
	}
	req.Header.Set("User-Agent", g.agent)

	resp, errGet := g.client.Do(req)
	if errGet != nil {
		return g.markUnavailable(host, errGet)
	}
	defer resp.Body.Close()

	data, errParse := robotstxt.FromResponse(resp)
	if errParse != nil {
		return g.markUnavailable(host, errParse)
	}

	group := data.FindGroup(g.agent)
	delay := g.floor
	if group != nil && group.CrawlDelay > delay {
		delay = group.CrawlDelay
	}
	g.mu.Lock()
	g.hosts[host] = &hostPolicy{
		group:    group,
		delay:    delay,
		sitemaps: data.Sitemaps,
	}
	g.mu.Unlock()
	return nil
}

func (g *PolicyGate) markUnavailable(host string, cause error) error {
	g.mu.Lock()
	g.hosts[host] = &hostPolicy{
		delay:       g.floor,
		unavailable: true,
	}
	g.mu.Unlock()
	return fmt.Errorf("%w for host %s: %v", ErrPolicyUnavailable, host, cause)
}

// Allowed evaluates a normalized URL against the cached rules. Hosts
// without a loaded policy are denied, as are all non-seed URLs of hosts
// whose policy is unavailable.
func (g *PolicyGate) Allowed(u *url.URL) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	policy, ok := g.hosts[u.Host]
	if !ok || policy.unavailable {
		_, seeded := g.seeds[u.String()]
		return seeded
	}
	if policy.group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return policy.group.Test(path)
}

// CrawlDelay returns max(declared delay, politeness floor) for a host.
func (g *PolicyGate) CrawlDelay(host string) time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if policy, ok := g.hosts[host]; ok {
		return policy.delay
	}
	return g.floor
}

// Sitemaps returns the sitemap locations robots.txt declared for a host.
func (g *PolicyGate) Sitemaps(host string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if policy, ok := g.hosts[host]; ok {
		return policy.sitemaps
	}
	return nil
}

// Unavailable reports whether the host's robots resource could not be
// fetched and the deny-all fallback is in effect.
func (g *PolicyGate) Unavailable(host string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	policy, ok := g.hosts[host]
	return ok && policy.unavailable
}
