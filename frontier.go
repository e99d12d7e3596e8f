package gatherer

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/foomo/gatherer/vo"
)

// normalizeLink resolves a raw link against its base the way a browser
// would: anchors dropped, relative host/scheme inherited.
func normalizeLink(baseURL *url.URL, linkURL string) (normalizedLink *url.URL, err error) {
	// let us ditch anchors
	anchorParts := strings.Split(linkURL, "#")
	linkURL = anchorParts[0]
	link, errParseLink := url.Parse(linkURL)
	if errParseLink != nil {
		return nil, errParseLink
	}
	if baseURL != nil {
		link = baseURL.ResolveReference(link)
	}
	link.Fragment = ""
	link.Host = strings.ToLower(link.Host)
	return link, nil
}

// canonicalKey is the frontier's uniqueness key: scheme, host, path and
// the query with its parameters sorted, fragment stripped.
func canonicalKey(u *url.URL) string {
	key := u.Scheme + "://" + strings.ToLower(u.Host) + u.Path
	q := u.Query()
	if len(q) == 0 {
		return key
	}
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(q))
	for _, name := range names {
		values := q[name]
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, name+"="+v)
		}
	}
	return key + "?" + strings.Join(parts, "&")
}

// Frontier holds discovered but unvisited targets: breadth-first by
// discovery depth, FIFO within a depth. The seen-set lives for the whole
// crawl so a URL is never fetched twice even if rediscovered. Depth and
// total-target caps keep Pop finite on crawler traps.
type Frontier struct {
	gate       *PolicyGate
	pacer      *HostPacer
	maxDepth   int
	maxTargets int

	seen     map[string]struct{}
	depths   map[int][]vo.Target
	minDepth int
	size     int
	admitted int

	skippedPolicy    int
	skippedDuplicate int
	skippedBounds    int
	skips            []vo.Skip
}

func NewFrontier(gate *PolicyGate, pacer *HostPacer, maxDepth, maxTargets int) *Frontier {
	return &Frontier{
		gate:       gate,
		pacer:      pacer,
		maxDepth:   maxDepth,
		maxTargets: maxTargets,
		seen:       map[string]struct{}{},
		depths:     map[int][]vo.Target{},
	}
}

// Seed admits initial targets at depth zero, bypassing the policy gate —
// explicitly seeded URLs stay fetchable even under the deny-all fallback.
// Duplicates are silently ignored.
func (f *Frontier) Seed(rawURLs []string) (admitted []vo.Target, err error) {
	for _, rawURL := range rawURLs {
		u, errParse := normalizeLink(nil, rawURL)
		if errParse != nil {
			return nil, errParse
		}
		key := canonicalKey(u)
		if _, dup := f.seen[key]; dup {
			continue
		}
		f.gate.AddSeed(u.String())
		target := vo.Target{
			URL:    u.String(),
			Host:   u.Host,
			Depth:  0,
			Source: vo.SourceSeed,
		}
		f.admit(key, target)
		admitted = append(admitted, target)
	}
	return admitted, nil
}

// Push admits a discovered target unless it is a duplicate, denied by
// policy or out of bounds. Every refusal is counted, never silent.
func (f *Frontier) Push(target vo.Target) bool {
	u, errParse := url.Parse(target.URL)
	if errParse != nil {
		f.skippedBounds++
		f.skips = append(f.skips, vo.Skip{URL: target.URL, Reason: vo.SkipBounds})
		return false
	}
	key := canonicalKey(u)
	if _, dup := f.seen[key]; dup {
		f.skippedDuplicate++
		f.skips = append(f.skips, vo.Skip{URL: target.URL, Reason: vo.SkipDuplicate})
		return false
	}
	if target.Depth > f.maxDepth || f.admitted >= f.maxTargets {
		f.seen[key] = struct{}{}
		f.skippedBounds++
		f.skips = append(f.skips, vo.Skip{URL: target.URL, Reason: vo.SkipBounds})
		return false
	}
	if !f.gate.Allowed(u) {
		f.seen[key] = struct{}{}
		f.skippedPolicy++
		f.skips = append(f.skips, vo.Skip{URL: target.URL, Reason: vo.SkipPolicy})
		return false
	}
	target.Host = u.Host
	f.admit(key, target)
	return true
}

func (f *Frontier) admit(key string, target vo.Target) {
	f.seen[key] = struct{}{}
	f.depths[target.Depth] = append(f.depths[target.Depth], target)
	if f.size == 0 || target.Depth < f.minDepth {
		f.minDepth = target.Depth
	}
	f.size++
	f.admitted++
}

// Pop returns the next target honoring per-host pacing: within the
// current depth it prefers a host whose pacing window has passed; when
// every queued host is inside its window it returns the head together
// with the wait the caller must honor before fetching. Pop never hands
// out a target early.
func (f *Frontier) Pop(now time.Time) (target vo.Target, wait time.Duration, ok bool) {
	if f.size == 0 {
		return vo.Target{}, 0, false
	}
	for f.depths[f.minDepth] == nil || len(f.depths[f.minDepth]) == 0 {
		delete(f.depths, f.minDepth)
		f.minDepth++
	}
	queue := f.depths[f.minDepth]
	pick := 0
	wait = f.holdback(queue[0], now)
	if wait > 0 {
		for i := 1; i < len(queue); i++ {
			if rest := f.holdback(queue[i], now); rest < wait {
				pick, wait = i, rest
				if rest == 0 {
					break
				}
			}
		}
	}
	target = queue[pick]
	f.depths[f.minDepth] = append(queue[:pick], queue[pick+1:]...)
	f.size--
	return target, wait, true
}

func (f *Frontier) holdback(target vo.Target, now time.Time) time.Duration {
	readyAt := f.pacer.ReadyAt(target.Host)
	if rest := readyAt.Sub(now); rest > 0 {
		return rest
	}
	return 0
}

func (f *Frontier) Len() int { return f.size }

// Counts reports the skip tallies: policy denied, duplicate, out of
// bounds (depth or target cap).
func (f *Frontier) Counts() (policy, duplicate, bounds int) {
	return f.skippedPolicy, f.skippedDuplicate, f.skippedBounds
}

// Skips enumerates every refused target for the post-mortem summary.
func (f *Frontier) Skips() []vo.Skip {
	return f.skips
}
