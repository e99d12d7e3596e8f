package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/foomo/gatherer/vo"
)

const (
	confComplete = `
---
agent: stats-gatherer/2.0
seeds:
  - https://stats.example.com/sitemap.xml
mincrawldelay: 2s
maxretries: 5
maxdepth: 2
maxpages: 50
wallclockbudget: 1m
requesttimeout: 5s
rate:
  requests: 10
  window: 1m
schema:
  anchor: "table#leaders"
  fields:
    - name: player
      type: text
    - name: points
      type: number
out: records.ndjson
sqlite: records.db
...
`
	confMinimal = `
---
seeds:
  - https://stats.example.com/
...
`
)

func TestLoad(t *testing.T) {
	cnf, errCnf := Load([]byte(confComplete))
	assert.NoError(t, errCnf)
	assert.Equal(t, "stats-gatherer/2.0", cnf.Agent)
	assert.Equal(t, []string{"https://stats.example.com/sitemap.xml"}, cnf.Seeds)
	assert.Equal(t, 2*time.Second, cnf.MinCrawlDelay.Duration)
	assert.Equal(t, 5, cnf.MaxRetries)
	assert.Equal(t, 2, cnf.MaxDepth)
	assert.Equal(t, 50, cnf.MaxPages)
	assert.Equal(t, time.Minute, cnf.WallClockBudget.Duration)
	assert.Equal(t, 10, cnf.Rate.Requests)
	assert.Equal(t, "table#leaders", cnf.Schema.Anchor)
	assert.Equal(t, []string{"player", "points"}, cnf.Schema.FieldNames())
	assert.Equal(t, vo.FieldNumber, cnf.Schema.Fields[1].Type)
	assert.NoError(t, cnf.Validate())

	cnf, errCnf = Load([]byte(confMinimal))
	assert.NoError(t, errCnf)
	assert.Equal(t, DefaultAgent, cnf.Agent)
	assert.NoError(t, cnf.Validate())
	assert.Equal(t, "table.stats", cnf.Schema.Anchor)
}

func TestValidateRejectsInvalidConfig(t *testing.T) {
	invalid := []func(c *Config){
		func(c *Config) { c.Agent = "" },
		func(c *Config) { c.Seeds = nil },
		func(c *Config) { c.MaxRetries = -1 },
		func(c *Config) { c.MaxDepth = -1 },
		func(c *Config) { c.MaxPages = 0 },
		func(c *Config) { c.MaxPages = -3 },
		func(c *Config) { c.MaxTargets = 0 },
		func(c *Config) { c.WallClockBudget = DurationFrom(0) },
		func(c *Config) { c.RequestTimeout = DurationFrom(-time.Second) },
		func(c *Config) { c.Schema.Fields = nil },
		func(c *Config) { c.Schema.Fields = []vo.Field{{Name: "x", Type: "decimal"}} },
	}
	for i, mutate := range invalid {
		c := Default()
		c.Seeds = []string{"https://stats.example.com/"}
		mutate(c)
		assert.Error(t, c.Validate(), "case %d", i)
	}
}

func TestValidateRaisesDelayToFloor(t *testing.T) {
	c := Default()
	c.Seeds = []string{"https://stats.example.com/"}
	c.MinCrawlDelay = DurationFrom(100 * time.Millisecond)
	assert.NoError(t, c.Validate())
	assert.Equal(t, MinCrawlDelayFloor, c.MinCrawlDelay.Duration)
}

func TestDurationAcceptsNumericSeconds(t *testing.T) {
	cnf, errCnf := Load([]byte("seeds: [\"https://stats.example.com/\"]\nmincrawldelay: 3\n"))
	assert.NoError(t, errCnf)
	assert.Equal(t, 3*time.Second, cnf.MinCrawlDelay.Duration)
}
