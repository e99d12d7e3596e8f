package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/foomo/gatherer/vo"
)

const (
	DefaultAgent = "gatherer/1.0 (+https://github.com/foomo/gatherer)"

	// MinCrawlDelayFloor is the politeness floor. Declared crawl delays
	// below it are raised, never honored.
	MinCrawlDelayFloor = time.Second
)

// Rate caps request throughput per host on top of the crawl delay.
// Zero values disable the token bucket.
type Rate struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Config is the full surface of one crawl run. A Config is built once,
// validated, and handed to the driver; no state survives the run.
type Config struct {
	Agent             string    `yaml:"agent"`
	Seeds             []string  `yaml:"seeds"`
	MinCrawlDelay     Duration  `yaml:"mincrawldelay"`
	MaxRetries        int       `yaml:"maxretries"`
	MaxDepth          int       `yaml:"maxdepth"`
	MaxPages          int       `yaml:"maxpages"`
	MaxTargets        int       `yaml:"maxtargets"`
	WallClockBudget   Duration  `yaml:"wallclockbudget"`
	RequestTimeout    Duration  `yaml:"requesttimeout"`
	RetryBackoffBase  Duration  `yaml:"retrybackoffbase"`
	RetryBackoffMax   Duration  `yaml:"retrybackoffmax"`
	AllowSeedFallback bool      `yaml:"allowseedfallback"`
	Rate              Rate      `yaml:"rate"`
	Schema            vo.Schema `yaml:"schema"`
	Out               string    `yaml:"out"`
	SQLite            string    `yaml:"sqlite"`
	MetricsAddr       string    `yaml:"metricsaddr"`
}

// Default returns a Config with the politeness defaults applied.
func Default() *Config {
	return &Config{
		Agent:            DefaultAgent,
		MinCrawlDelay:    DurationFrom(MinCrawlDelayFloor),
		MaxRetries:       3,
		MaxDepth:         3,
		MaxPages:         1000,
		MaxTargets:       10000,
		WallClockBudget:  DurationFrom(10 * time.Minute),
		RequestTimeout:   DurationFrom(15 * time.Second),
		RetryBackoffBase: DurationFrom(500 * time.Millisecond),
		RetryBackoffMax:  DurationFrom(30 * time.Second),
		Schema: vo.Schema{
			Anchor: "table.stats",
			Fields: []vo.Field{
				{Name: "name", Type: vo.FieldText},
				{Name: "team", Type: vo.FieldText},
				{Name: "points", Type: vo.FieldNumber},
				{Name: "rebounds", Type: vo.FieldNumber},
				{Name: "assists", Type: vo.FieldNumber},
			},
		},
		Out: "-",
	}
}

// Load parses yaml bytes on top of the defaults.
func Load(yamlBytes []byte) (conf *Config, err error) {
	conf = Default()
	if errUnmarshal := yaml.Unmarshal(yamlBytes, conf); errUnmarshal != nil {
		return nil, errUnmarshal
	}
	return conf, nil
}

// Read loads a config file.
func Read(filename string) (conf *Config, err error) {
	yamlBytes, errRead := os.ReadFile(filename)
	if errRead != nil {
		return nil, errRead
	}
	return Load(yamlBytes)
}

// Validate rejects configurations the driver must not start with. It also
// raises the crawl delay to the politeness floor.
func (c *Config) Validate() error {
	if c.Agent == "" {
		return fmt.Errorf("agent must not be empty")
	}
	if len(c.Seeds) == 0 {
		return fmt.Errorf("at least one seed url is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("maxretries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("maxdepth must not be negative, got %d", c.MaxDepth)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("maxpages must be positive, got %d", c.MaxPages)
	}
	if c.MaxTargets <= 0 {
		return fmt.Errorf("maxtargets must be positive, got %d", c.MaxTargets)
	}
	if c.WallClockBudget.Duration <= 0 {
		return fmt.Errorf("wallclockbudget must be positive, got %s", c.WallClockBudget)
	}
	if c.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("requesttimeout must be positive, got %s", c.RequestTimeout)
	}
	if c.RetryBackoffBase.Duration <= 0 {
		return fmt.Errorf("retrybackoffbase must be positive, got %s", c.RetryBackoffBase)
	}
	if c.MinCrawlDelay.Duration < 0 {
		return fmt.Errorf("mincrawldelay must not be negative, got %s", c.MinCrawlDelay)
	}
	if c.MinCrawlDelay.Duration < MinCrawlDelayFloor {
		c.MinCrawlDelay = DurationFrom(MinCrawlDelayFloor)
	}
	if len(c.Schema.Fields) == 0 {
		return fmt.Errorf("schema must declare at least one field")
	}
	for _, f := range c.Schema.Fields {
		if f.Type != vo.FieldText && f.Type != vo.FieldNumber {
			return fmt.Errorf("schema field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}
