package gatherer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRobots = `
User-agent: *
Disallow: /private/
Allow: /private/press/
Crawl-delay: 2
Sitemap: /sitemap-players.xml
`

func newRobotsServer(t *testing.T, robots string, status int) (*httptest.Server, string) {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(robots))
	}))
	t.Cleanup(s.Close)
	u, errParse := url.Parse(s.URL)
	require.NoError(t, errParse)
	return s, u.Host
}

func mustURL(t *testing.T, rawURL string) *url.URL {
	t.Helper()
	u, errParse := url.Parse(rawURL)
	require.NoError(t, errParse)
	return u
}

func TestPolicyGateAllowDeny(t *testing.T) {
	_, host := newRobotsServer(t, testRobots, http.StatusOK)
	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	require.NoError(t, gate.Load(context.Background(), "http", host))

	assert.True(t, gate.Allowed(mustURL(t, "http://"+host+"/stats")))
	assert.False(t, gate.Allowed(mustURL(t, "http://"+host+"/private/draft")))
	// longest matching prefix wins
	assert.True(t, gate.Allowed(mustURL(t, "http://"+host+"/private/press/2024")))
}

func TestPolicyGateCrawlDelay(t *testing.T) {
	_, host := newRobotsServer(t, testRobots, http.StatusOK)
	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	require.NoError(t, gate.Load(context.Background(), "http", host))

	// declared 2s beats the 1s floor
	assert.Equal(t, 2*time.Second, gate.CrawlDelay(host))
	// unknown hosts get the floor
	assert.Equal(t, time.Second, gate.CrawlDelay("unknown.example.com"))
}

func TestPolicyGateFloorBeatsShortDeclaredDelay(t *testing.T) {
	_, host := newRobotsServer(t, "User-agent: *\nCrawl-delay: 0.1\n", http.StatusOK)
	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	require.NoError(t, gate.Load(context.Background(), "http", host))
	assert.Equal(t, time.Second, gate.CrawlDelay(host))
}

func TestPolicyGateSitemapHints(t *testing.T) {
	_, host := newRobotsServer(t, testRobots, http.StatusOK)
	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	require.NoError(t, gate.Load(context.Background(), "http", host))
	assert.Equal(t, []string{"/sitemap-players.xml"}, gate.Sitemaps(host))
}

func TestPolicyGateMissingRobotsAllowsAll(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	defer s.Close()
	host := mustURL(t, s.URL).Host

	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	// a 404 means no restrictions, not unavailability
	require.NoError(t, gate.Load(context.Background(), "http", host))
	assert.False(t, gate.Unavailable(host))
	assert.True(t, gate.Allowed(mustURL(t, "http://"+host+"/anything")))
}

func TestPolicyGateUnavailableDeniesAllButSeeds(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	host := mustURL(t, s.URL).Host
	s.Close() // robots fetch now fails at the network level

	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	errLoad := gate.Load(context.Background(), "http", host)
	require.Error(t, errLoad)
	assert.ErrorIs(t, errLoad, ErrPolicyUnavailable)
	assert.True(t, gate.Unavailable(host))

	seed := "http://" + host + "/seeded"
	gate.AddSeed(seed)
	assert.True(t, gate.Allowed(mustURL(t, seed)))
	assert.False(t, gate.Allowed(mustURL(t, "http://"+host+"/discovered")))
}

func TestPolicyGateServerErrorIsUnavailable(t *testing.T) {
	_, host := newRobotsServer(t, "", http.StatusInternalServerError)
	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	errLoad := gate.Load(context.Background(), "http", host)
	assert.ErrorIs(t, errLoad, ErrPolicyUnavailable)
	assert.False(t, gate.Allowed(mustURL(t, "http://"+host+"/stats")))
}

func TestPolicyGateUnknownHostDenied(t *testing.T) {
	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	assert.False(t, gate.Allowed(mustURL(t, "http://never-loaded.example.com/")))
}
