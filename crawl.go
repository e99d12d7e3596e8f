package gatherer

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/foomo/gatherer/config"
	"github.com/foomo/gatherer/sink"
	"github.com/foomo/gatherer/vo"
)

// State is the driver's phase. Transitions only move forward.
type State string

const (
	StateSeeding  State = "SEEDING"
	StateRunning  State = "RUNNING"
	StateDraining State = "DRAINING"
	StateDone     State = "DONE"
)

// Crawler drives one crawl run: pop, fetch, extract, push, until the
// frontier drains or a budget runs out. One Crawler per run, nothing is
// shared across runs.
type Crawler struct {
	conf      *config.Config
	gate      *PolicyGate
	pacer     *HostPacer
	frontier  *Frontier
	fetcher   *Fetcher
	extractor *Extractor
	out       sink.Sink
	metrics   *Metrics
	l         *slog.Logger
	state     State
	seenSkips struct {
		policy    int
		duplicate int
		bounds    int
	}
}

type Option func(*Crawler)

func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) { c.l = l }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Crawler) { c.metrics = NewMetrics(reg) }
}

// New validates the configuration and wires up the crawl. Invalid
// configuration is the one fatal condition, rejected before SEEDING.
func New(conf *config.Config, out sink.Sink, opts ...Option) (*Crawler, error) {
	if errValidate := conf.Validate(); errValidate != nil {
		return nil, errValidate
	}
	c := &Crawler{
		conf:  conf,
		out:   out,
		state: StateSeeding,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.l == nil {
		c.l = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(prometheus.NewRegistry())
	}
	c.gate = NewPolicyGate(nil, conf.Agent, conf.MinCrawlDelay.Duration)
	c.pacer = NewHostPacer(RateSettings{
		Requests: conf.Rate.Requests,
		Window:   conf.Rate.Window.Duration,
	})
	c.frontier = NewFrontier(c.gate, c.pacer, conf.MaxDepth, conf.MaxTargets)
	c.fetcher = NewFetcher(FetcherOptions{
		Agent:          conf.Agent,
		RequestTimeout: conf.RequestTimeout.Duration,
		MaxRetries:     conf.MaxRetries,
		BackoffBase:    conf.RetryBackoffBase.Duration,
		BackoffMax:     conf.RetryBackoffMax.Duration,
	}, c.gate, c.pacer, c.l)
	c.extractor = NewExtractor(conf.Schema)
	return c, nil
}

// State returns the driver's current phase.
func (c *Crawler) State() State { return c.state }

// Run executes SEEDING -> RUNNING -> DRAINING -> DONE. The returned
// error is non-nil only when the crawl could not start: unparseable
// seeds, or robots unavailable for a seed host without the configured
// fallback. Everything after SEEDING is reported through the summary.
func (c *Crawler) Run(ctx context.Context) (vo.Summary, error) {
	summary := vo.Summary{Started: time.Now()}

	seeds, errSeed := c.seed(ctx)
	if errSeed != nil {
		summary.Reason = vo.ReasonCancelled
		return summary, errSeed
	}
	c.l.Info("seeded", "targets", len(seeds))

	c.state = StateRunning
	reason := c.run(ctx, &summary)

	c.state = StateDraining
	if errFlush := c.out.Flush(); errFlush != nil {
		c.l.Error("flushing sink failed", "err", errFlush)
	}

	c.state = StateDone
	summary.Reason = reason
	summary.SkippedByPolicy, summary.SkippedDuplicate, summary.SkippedBounds = c.frontier.Counts()
	summary.Skips = c.frontier.Skips()
	summary.Duration = time.Since(summary.Started)
	c.l.Info("crawl done",
		"reason", summary.Reason,
		"fetched", summary.Fetched,
		"sitemaps", summary.Sitemaps,
		"failed", summary.Failed,
		"records", summary.Records,
		"skippedByPolicy", summary.SkippedByPolicy,
		"skippedDuplicate", summary.SkippedDuplicate,
		"duration", summary.Duration)
	return summary, nil
}

// seed loads the robots policy for every seed host and admits the seed
// targets, expanded with conventional sitemap locations for bare hosts
// and the Sitemap hints robots.txt declares.
func (c *Crawler) seed(ctx context.Context) ([]vo.Target, error) {
	seeds := make([]string, 0, len(c.conf.Seeds))
	hosts := map[string]string{}
	for _, rawSeed := range c.conf.Seeds {
		u, errParse := url.Parse(rawSeed)
		if errParse != nil {
			return nil, errParse
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("seed url must be absolute: " + rawSeed)
		}
		if u.Path == "" || u.Path == "/" {
			seeds = append(seeds,
				rawSeed,
				u.Scheme+"://"+u.Host+"/sitemap.xml",
				u.Scheme+"://"+u.Host+"/sitemap_index.xml",
			)
		} else {
			seeds = append(seeds, rawSeed)
		}
		hosts[u.Host] = u.Scheme
	}

	for host, scheme := range hosts {
		if errLoad := c.gate.Load(ctx, scheme, host); errLoad != nil {
			if !errors.Is(errLoad, ErrPolicyUnavailable) {
				return nil, errLoad
			}
			if !c.conf.AllowSeedFallback {
				return nil, errLoad
			}
			c.l.Warn("robots unavailable, crawling seeds only", "host", host, "err", errLoad)
			continue
		}
		base := &url.URL{Scheme: scheme, Host: host, Path: "/"}
		for _, hint := range c.gate.Sitemaps(host) {
			if hintU, errHint := normalizeLink(base, hint); errHint == nil {
				seeds = append(seeds, hintU.String())
			}
		}
	}
	return c.frontier.Seed(seeds)
}

func (c *Crawler) run(ctx context.Context, summary *vo.Summary) vo.Reason {
	deadline := summary.Started.Add(c.conf.WallClockBudget.Duration)
	for {
		// cancellation is cooperative, checked once per iteration
		if ctx.Err() != nil {
			return vo.ReasonCancelled
		}
		if summary.Fetched+summary.Failed >= c.conf.MaxPages {
			return vo.ReasonBudgetExceeded
		}
		if time.Now().After(deadline) {
			return vo.ReasonBudgetExceeded
		}

		target, wait, ok := c.frontier.Pop(time.Now())
		if !ok {
			return vo.ReasonFrontierExhausted
		}
		if wait > 0 {
			c.l.Debug("pacing", "host", target.Host, "wait", wait)
		}

		result := c.fetcher.Fetch(ctx, target)
		if ctx.Err() != nil && result.Attempts == 0 {
			// cancelled during the pacing wait, nothing was sent
			continue
		}
		c.observe(result)
		c.processResult(summary, target, result)
		c.syncFrontierMetrics(summary)
	}
}

func (c *Crawler) processResult(summary *vo.Summary, target vo.Target, result vo.FetchResult) {
	if !result.OK() {
		summary.Failed++
		summary.Failures = append(summary.Failures, vo.Failure{
			URL:      target.URL,
			Code:     result.Code,
			Error:    result.Error,
			Attempts: result.Attempts,
		})
		c.l.Warn("fetch failed",
			"url", target.URL,
			"code", result.Code,
			"attempts", result.Attempts,
			"err", result.Error)
		return
	}

	pageURL, errParse := url.Parse(target.URL)
	if errParse != nil {
		summary.Failed++
		return
	}

	if looksLikeSitemap(result.ContentType, result.Body) {
		entries, errSitemap := ParseSitemap(pageURL, result.Body)
		if errSitemap != nil {
			summary.MalformedSitemaps++
			c.l.Warn("malformed sitemap, dropping source", "url", target.URL, "err", errSitemap)
			return
		}
		summary.Sitemaps++
		for _, entry := range entries {
			c.frontier.Push(vo.Target{
				URL:    entry.URL,
				Depth:  target.Depth + 1,
				Source: vo.SourceSitemap,
			})
		}
		return
	}

	page, links, emitted, skippedRows, errPage := c.extractor.ParsePage(pageURL, result.Body, func(record vo.Record) {
		if errWrite := c.out.Write(record); errWrite != nil {
			c.l.Error("writing record failed", "url", target.URL, "err", errWrite)
			return
		}
		c.metrics.RecordsTotal.Inc()
	})
	summary.Fetched++
	if errPage != nil {
		summary.MalformedPages++
		c.l.Warn("malformed page, dropping source", "url", target.URL, "err", errPage)
		return
	}
	summary.Records += emitted
	summary.SkippedRows += skippedRows
	summary.Pages = append(summary.Pages, page)
	for _, link := range links {
		c.frontier.Push(vo.Target{
			URL:    link,
			Depth:  target.Depth + 1,
			Source: vo.SourceLink,
		})
	}
}

func (c *Crawler) observe(result vo.FetchResult) {
	c.metrics.FetchesTotal.Inc()
	c.metrics.FetchStatusCodes.WithLabelValues(strconv.Itoa(result.Code)).Inc()
	c.metrics.FetchDurations.WithLabelValues(strings.ToLower(result.Target.Host)).Observe(result.Duration.Seconds())
}

func (c *Crawler) syncFrontierMetrics(summary *vo.Summary) {
	c.metrics.FrontierOpen.Set(float64(c.frontier.Len()))
	c.metrics.FrontierDone.Set(float64(summary.Fetched + summary.Sitemaps))
	policy, duplicate, bounds := c.frontier.Counts()
	// counters only move forward, feed the delta since the last sync
	c.metrics.SkipsTotal.WithLabelValues(string(vo.SkipPolicy)).Add(float64(policy - c.seenSkips.policy))
	c.metrics.SkipsTotal.WithLabelValues(string(vo.SkipDuplicate)).Add(float64(duplicate - c.seenSkips.duplicate))
	c.metrics.SkipsTotal.WithLabelValues(string(vo.SkipBounds)).Add(float64(bounds - c.seenSkips.bounds))
	c.seenSkips.policy, c.seenSkips.duplicate, c.seenSkips.bounds = policy, duplicate, bounds
}
