package vo

import (
	"fmt"
	"strings"
	"time"
)

// Reason is the terminal condition of a crawl. None of these are failures,
// they say why the driver stopped.
type Reason string

const (
	ReasonFrontierExhausted Reason = "FrontierExhausted"
	ReasonBudgetExceeded    Reason = "BudgetExceeded"
	ReasonCancelled         Reason = "Cancelled"
)

type SkipReason string

const (
	SkipPolicy    SkipReason = "policy"
	SkipDuplicate SkipReason = "duplicate"
	SkipBounds    SkipReason = "bounds"
)

// Skip records one target the frontier refused.
type Skip struct {
	URL    string
	Reason SkipReason
}

// Failure records one target that ended in a terminal fetch error.
type Failure struct {
	URL      string
	Code     int
	Error    string
	Attempts int
}

// Summary is what a finished crawl reports.
type Summary struct {
	Reason            Reason
	Fetched           int
	Sitemaps          int
	Failed            int
	SkippedByPolicy   int
	SkippedDuplicate  int
	SkippedBounds     int
	Records           int
	SkippedRows       int
	MalformedSitemaps int
	MalformedPages    int
	Started           time.Time
	Duration          time.Duration
	Pages             []PageInfo
	Failures          []Failure
	Skips             []Skip
}

// Report renders a human readable end-of-crawl report.
func (s Summary) Report() string {
	b := &strings.Builder{}
	line := strings.Repeat("=", 60)
	fmt.Fprintln(b, line)
	fmt.Fprintln(b, "crawl report")
	fmt.Fprintln(b, line)
	fmt.Fprintf(b, "finished:           %s\n", s.Reason)
	fmt.Fprintf(b, "fetched pages:      %d\n", s.Fetched)
	fmt.Fprintf(b, "fetched sitemaps:   %d\n", s.Sitemaps)
	fmt.Fprintf(b, "failed:             %d\n", s.Failed)
	fmt.Fprintf(b, "skipped by policy:  %d\n", s.SkippedByPolicy)
	fmt.Fprintf(b, "skipped duplicates: %d\n", s.SkippedDuplicate)
	fmt.Fprintf(b, "skipped by bounds:  %d\n", s.SkippedBounds)
	fmt.Fprintf(b, "records:            %d\n", s.Records)
	fmt.Fprintf(b, "skipped rows:       %d\n", s.SkippedRows)
	fmt.Fprintf(b, "malformed sitemaps: %d\n", s.MalformedSitemaps)
	fmt.Fprintf(b, "malformed pages:    %d\n", s.MalformedPages)
	fmt.Fprintf(b, "duration:           %s\n", s.Duration.Round(time.Millisecond))
	if s.Fetched > 0 {
		avg := s.Duration / time.Duration(s.Fetched)
		fmt.Fprintf(b, "avg per fetch:      %s\n", avg.Round(time.Millisecond))
	}
	if len(s.Pages) > 0 {
		fmt.Fprintln(b, line)
		for i, p := range s.Pages {
			fmt.Fprintf(b, "%d. %s (%d tables, %d links) %s\n", i+1, p.Title, p.Tables, p.Links, p.URL)
		}
	}
	for _, f := range s.Failures {
		fmt.Fprintf(b, "failed %d after %d attempts: %s %s\n", f.Code, f.Attempts, f.URL, f.Error)
	}
	fmt.Fprintln(b, line)
	return b.String()
}
