package gatherer

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foomo/gatherer/vo"
)

func newTestFrontier(t *testing.T, robots string, maxDepth, maxTargets int) (*Frontier, *HostPacer, string) {
	t.Helper()
	_, host := newRobotsServer(t, robots, http.StatusOK)
	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	require.NoError(t, gate.Load(context.Background(), "http", host))
	pacer := NewHostPacer(RateSettings{})
	return NewFrontier(gate, pacer, maxDepth, maxTargets), pacer, host
}

func TestCanonicalKey(t *testing.T) {
	a := mustURL(t, "http://example.com/stats?b=2&a=1#row-5")
	b := mustURL(t, "http://EXAMPLE.com/stats?a=1&b=2")
	assert.Equal(t, canonicalKey(b), canonicalKey(a))
	c := mustURL(t, "http://example.com/stats?a=2&b=2")
	assert.NotEqual(t, canonicalKey(a), canonicalKey(c))
}

func TestNormalizeLinkResolvesAgainstBase(t *testing.T) {
	base := mustURL(t, "http://example.com/stats/2024")
	u, errNormalize := normalizeLink(base, "../players?page=2#top")
	require.NoError(t, errNormalize)
	assert.Equal(t, "http://example.com/players?page=2", u.String())
}

func TestFrontierDeduplicates(t *testing.T) {
	f, _, host := newTestFrontier(t, "User-agent: *\nAllow: /\n", 3, 100)

	target := vo.Target{URL: "http://" + host + "/a", Depth: 1, Source: vo.SourceSitemap}
	assert.True(t, f.Push(target))
	assert.False(t, f.Push(target))
	// same resource, shuffled query and fragment
	assert.True(t, f.Push(vo.Target{URL: "http://" + host + "/b?x=1&y=2", Depth: 1}))
	assert.False(t, f.Push(vo.Target{URL: "http://" + host + "/b?y=2&x=1#frag", Depth: 1}))

	_, duplicate, _ := f.Counts()
	assert.Equal(t, 2, duplicate)
	assert.Equal(t, 2, f.Len())
}

func TestFrontierPolicySkip(t *testing.T) {
	f, _, host := newTestFrontier(t, "User-agent: *\nDisallow: /private/\n", 3, 100)

	assert.True(t, f.Push(vo.Target{URL: "http://" + host + "/public", Depth: 1}))
	assert.False(t, f.Push(vo.Target{URL: "http://" + host + "/private/x", Depth: 1}))

	policy, _, _ := f.Counts()
	assert.Equal(t, 1, policy)
	skips := f.Skips()
	require.Len(t, skips, 1)
	assert.Equal(t, vo.SkipPolicy, skips[0].Reason)

	// a denied URL is remembered, pushing it again counts a duplicate
	assert.False(t, f.Push(vo.Target{URL: "http://" + host + "/private/x", Depth: 1}))
	policy, duplicate, _ := f.Counts()
	assert.Equal(t, 1, policy)
	assert.Equal(t, 1, duplicate)
}

func TestFrontierBreadthFirst(t *testing.T) {
	f, _, host := newTestFrontier(t, "User-agent: *\nAllow: /\n", 5, 100)

	require.True(t, f.Push(vo.Target{URL: "http://" + host + "/deep", Depth: 2}))
	require.True(t, f.Push(vo.Target{URL: "http://" + host + "/a", Depth: 1}))
	require.True(t, f.Push(vo.Target{URL: "http://" + host + "/b", Depth: 1}))

	now := time.Now()
	got := []string{}
	for {
		target, wait, ok := f.Pop(now)
		if !ok {
			break
		}
		assert.Zero(t, wait)
		got = append(got, target.URL)
	}
	assert.Equal(t, []string{
		"http://" + host + "/a",
		"http://" + host + "/b",
		"http://" + host + "/deep",
	}, got)
}

func TestFrontierDepthAndTargetCaps(t *testing.T) {
	f, _, host := newTestFrontier(t, "User-agent: *\nAllow: /\n", 1, 2)

	assert.True(t, f.Push(vo.Target{URL: "http://" + host + "/a", Depth: 1}))
	assert.False(t, f.Push(vo.Target{URL: "http://" + host + "/too-deep", Depth: 2}))
	assert.True(t, f.Push(vo.Target{URL: "http://" + host + "/b", Depth: 1}))
	// total-target cap reached
	assert.False(t, f.Push(vo.Target{URL: "http://" + host + "/c", Depth: 1}))

	_, _, bounds := f.Counts()
	assert.Equal(t, 2, bounds)
}

func TestFrontierPacingHoldback(t *testing.T) {
	f, pacer, host := newTestFrontier(t, "User-agent: *\nAllow: /\n", 3, 100)
	require.True(t, f.Push(vo.Target{URL: "http://" + host + "/a", Depth: 1}))

	pacer.Mark(host, time.Second)
	target, wait, ok := f.Pop(time.Now())
	require.True(t, ok)
	assert.Equal(t, "http://"+host+"/a", target.URL)
	assert.Greater(t, wait, 500*time.Millisecond)
}

func TestFrontierPrefersReadyHost(t *testing.T) {
	robots := "User-agent: *\nAllow: /\n"
	_, hostA := newRobotsServer(t, robots, http.StatusOK)
	_, hostB := newRobotsServer(t, robots, http.StatusOK)
	gate := NewPolicyGate(nil, "gatherer-test", time.Second)
	require.NoError(t, gate.Load(context.Background(), "http", hostA))
	require.NoError(t, gate.Load(context.Background(), "http", hostB))
	pacer := NewHostPacer(RateSettings{})
	f := NewFrontier(gate, pacer, 3, 100)

	require.True(t, f.Push(vo.Target{URL: "http://" + hostA + "/1", Depth: 1}))
	require.True(t, f.Push(vo.Target{URL: "http://" + hostB + "/1", Depth: 1}))

	// hostA is inside its window, hostB is not: pop must not serialize on A
	pacer.Mark(hostA, time.Second)
	target, wait, ok := f.Pop(time.Now())
	require.True(t, ok)
	assert.Zero(t, wait)
	assert.Equal(t, hostB, target.Host)
}

func TestFrontierSeedBypassesPolicy(t *testing.T) {
	f, _, host := newTestFrontier(t, "User-agent: *\nDisallow: /\n", 3, 100)
	seeded, errSeed := f.Seed([]string{"http://" + host + "/stats", "http://" + host + "/stats"})
	require.NoError(t, errSeed)
	assert.Len(t, seeded, 1)
	assert.Equal(t, 1, f.Len())
}
