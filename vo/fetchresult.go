package vo

import "time"

// FetchResult is the immutable outcome of fetching one target, success or
// failure. Failures are carried as data, the crawl keeps going.
type FetchResult struct {
	Target      Target
	Code        int
	Status      string
	ContentType string
	Body        []byte
	Error       string
	Attempts    int
	Time        time.Time
	Duration    time.Duration
}

func (r FetchResult) OK() bool {
	return r.Error == "" && r.Code >= 200 && r.Code < 300
}

// PageInfo is per-page metadata collected during extraction.
type PageInfo struct {
	URL    string
	Title  string
	Tables int
	Links  int
	Length int
}
