package gatherer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/foomo/gatherer/config"
	"github.com/foomo/gatherer/sink"
	"github.com/foomo/gatherer/vo"
)

// Service runs one crawl and, when an address is configured, serves the
// crawl's prometheus metrics for its duration.
type Service struct {
	crawler *Crawler
	reg     *prometheus.Registry
	addr    string
	l       *slog.Logger
}

func NewService(conf *config.Config, out sink.Sink, l *slog.Logger) (*Service, error) {
	if l == nil {
		l = slog.Default()
	}
	reg := prometheus.NewRegistry()
	crawler, errNew := New(conf, out, WithLogger(l), WithRegisterer(reg))
	if errNew != nil {
		return nil, errNew
	}
	return &Service{
		crawler: crawler,
		reg:     reg,
		addr:    conf.MetricsAddr,
		l:       l,
	}, nil
}

// Run executes the crawl; the metrics listener lives exactly as long as
// the run does.
func (s *Service) Run(ctx context.Context) (vo.Summary, error) {
	if s.addr == "" {
		return s.crawler.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	var summary vo.Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		var errRun error
		summary, errRun = s.crawler.Run(gctx)
		return errRun
	})
	g.Go(func() error {
		errServe := server.ListenAndServe()
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	errWait := g.Wait()
	return summary, errWait
}
