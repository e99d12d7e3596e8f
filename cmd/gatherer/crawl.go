package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/foomo/gatherer"
	"github.com/foomo/gatherer/config"
	"github.com/foomo/gatherer/sink"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl a site starting from seed or sitemap URLs",
		Long: `Crawl fetches the given seed URLs, expands sitemaps it finds, and
extracts table records according to the configured schema.

Seeds pointing at a bare host are expanded with the conventional sitemap
locations (/sitemap.xml, /sitemap_index.xml) and with the Sitemap hints
declared by the host's robots.txt.

Examples:
  # crawl a sitemap with defaults and print records to stdout
  gatherer crawl https://example.com/sitemap.xml

  # use a config file, persist records into sqlite
  gatherer crawl -c crawl.yaml --sqlite records.db https://example.com/

  # keep going when robots.txt is unreachable (seeds only)
  gatherer crawl --allow-seed-fallback https://example.com/stats`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file path (yaml)")
	cmd.Flags().StringP("agent", "a", "", "User-Agent sent on every request")
	cmd.Flags().DurationP("min-delay", "", 0, "Politeness floor between requests to one host (min 1s)")
	cmd.Flags().IntP("max-retries", "r", -1, "Retry cap per fetch for transient failures")
	cmd.Flags().IntP("max-depth", "d", -1, "Maximum discovery depth")
	cmd.Flags().IntP("max-pages", "p", -1, "Maximum number of page fetches")
	cmd.Flags().DurationP("budget", "b", 0, "Wall-clock budget for the whole crawl")
	cmd.Flags().DurationP("timeout", "t", 0, "Per-fetch request timeout")
	cmd.Flags().StringP("out", "o", "", "NDJSON destination path, \"-\" for stdout")
	cmd.Flags().StringP("sqlite", "s", "", "SQLite database path for extracted records")
	cmd.Flags().StringP("metrics-addr", "m", "", "Address to serve /metrics on while crawling")
	cmd.Flags().Bool("allow-seed-fallback", false,
		"Continue with a seeds-only crawl when robots.txt is unreachable")
	cmd.Flags().Bool("report", false, "Print the end-of-crawl report")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	conf, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := setupLogger(verbose)
	slog.SetDefault(logger)

	out, err := buildSink(conf)
	if err != nil {
		return err
	}
	defer out.Close()

	service, err := gatherer.NewService(conf, out, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, draining...")
		cancel()
	}()

	summary, err := service.Run(ctx)
	if err != nil {
		return err
	}
	if report, _ := cmd.Flags().GetBool("report"); report {
		fmt.Fprint(cmd.ErrOrStderr(), summary.Report())
	}
	return nil
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildConfig layers flags over the config file over the defaults.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	conf := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, errRead := config.Read(path)
		if errRead != nil {
			return nil, errRead
		}
		conf = loaded
	}
	if len(args) > 0 {
		conf.Seeds = args
	}
	if agent, _ := cmd.Flags().GetString("agent"); agent != "" {
		conf.Agent = agent
	}
	if minDelay, _ := cmd.Flags().GetDuration("min-delay"); minDelay > 0 {
		conf.MinCrawlDelay = config.DurationFrom(minDelay)
	}
	if maxRetries, _ := cmd.Flags().GetInt("max-retries"); maxRetries >= 0 {
		conf.MaxRetries = maxRetries
	}
	if maxDepth, _ := cmd.Flags().GetInt("max-depth"); maxDepth >= 0 {
		conf.MaxDepth = maxDepth
	}
	if maxPages, _ := cmd.Flags().GetInt("max-pages"); maxPages >= 0 {
		conf.MaxPages = maxPages
	}
	if budget, _ := cmd.Flags().GetDuration("budget"); budget > 0 {
		conf.WallClockBudget = config.DurationFrom(budget)
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		conf.RequestTimeout = config.DurationFrom(timeout)
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		conf.Out = out
	}
	if sqlitePath, _ := cmd.Flags().GetString("sqlite"); sqlitePath != "" {
		conf.SQLite = sqlitePath
	}
	if metricsAddr, _ := cmd.Flags().GetString("metrics-addr"); metricsAddr != "" {
		conf.MetricsAddr = metricsAddr
	}
	if fallback, _ := cmd.Flags().GetBool("allow-seed-fallback"); fallback {
		conf.AllowSeedFallback = true
	}
	return conf, nil
}

func buildSink(conf *config.Config) (sink.Sink, error) {
	sinks := sink.Multi{}
	ndjson, errNDJSON := sink.OpenNDJSON(conf.Out, conf.Schema.FieldNames())
	if errNDJSON != nil {
		return nil, errNDJSON
	}
	sinks = append(sinks, ndjson)
	if conf.SQLite != "" {
		store, errStore := sink.OpenSQLite(conf.SQLite)
		if errStore != nil {
			return nil, errStore
		}
		sinks = append(sinks, store)
	}
	return sinks, nil
}
