package vo

// Source tells where a target was discovered.
type Source string

const (
	SourceSeed    Source = "seed"
	SourceSitemap Source = "sitemap"
	SourceLink    Source = "link"
)

// Target is a discovered but not yet fetched URL. URL is the normalized
// absolute form, which is also the frontier's uniqueness key.
type Target struct {
	URL    string
	Host   string
	Depth  int
	Source Source
}
