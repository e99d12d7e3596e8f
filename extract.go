package gatherer

import (
	"bytes"
	"encoding/xml"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/foomo/gatherer/vo"
)

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

// SitemapEntry is one <loc> pulled out of a sitemap. Index entries point
// at child sitemaps and re-enter the frontier instead of being expanded
// recursively in-process.
type SitemapEntry struct {
	URL   string
	Index bool
}

// ParseSitemap reads a <urlset> or <sitemapindex> document and returns
// its entries resolved against the sitemap's own URL.
func ParseSitemap(baseURL *url.URL, xmlBytes []byte) ([]SitemapEntry, error) {
	doc := sitemapDoc{}
	if errUnmarshal := xml.Unmarshal(xmlBytes, &doc); errUnmarshal != nil {
		return nil, &MalformedSitemapError{URL: baseURL.String(), Err: errUnmarshal}
	}
	entries := make([]SitemapEntry, 0, len(doc.URLs)+len(doc.Sitemaps))
	for _, loc := range doc.URLs {
		if u := resolveLoc(baseURL, loc.Loc); u != "" {
			entries = append(entries, SitemapEntry{URL: u})
		}
	}
	for _, loc := range doc.Sitemaps {
		if u := resolveLoc(baseURL, loc.Loc); u != "" {
			entries = append(entries, SitemapEntry{URL: u, Index: true})
		}
	}
	return entries, nil
}

func resolveLoc(baseURL *url.URL, loc string) string {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return ""
	}
	u, errNormalize := normalizeLink(baseURL, loc)
	if errNormalize != nil {
		return ""
	}
	return u.String()
}

// looksLikeSitemap decides whether a fetched body is sitemap XML, by
// content type or by the document element.
func looksLikeSitemap(contentType string, body []byte) bool {
	if strings.Contains(contentType, "xml") {
		return true
	}
	head := bytes.TrimSpace(body)
	if len(head) > 256 {
		head = head[:256]
	}
	return bytes.Contains(head, []byte("<urlset")) || bytes.Contains(head, []byte("<sitemapindex"))
}

// Extractor turns fetched HTML into records matching a declared schema
// and collects same-site links for the frontier.
type Extractor struct {
	schema vo.Schema
}

func NewExtractor(schema vo.Schema) *Extractor {
	return &Extractor{schema: schema}
}

// ParsePage parses one HTML document: page metadata, record rows from the
// schema's anchor table, and the document's links. Records are handed to
// emit as they are produced, so earlier rows survive a malformed later
// one. Rows with too few cells or non-numeric values in numeric fields
// are skipped and counted, never fatal.
func (e *Extractor) ParsePage(pageURL *url.URL, htmlBytes []byte, emit func(vo.Record)) (page vo.PageInfo, links []string, emitted, skippedRows int, err error) {
	doc, errNewDoc := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if errNewDoc != nil {
		return page, nil, 0, 0, &MalformedPageError{URL: pageURL.String(), Err: errNewDoc}
	}

	links = extractLinks(pageURL, doc)
	page = vo.PageInfo{
		URL:    pageURL.String(),
		Title:  strings.TrimSpace(doc.Find("title").First().Text()),
		Tables: doc.Find("table").Length(),
		Links:  len(links),
		Length: len(htmlBytes),
	}

	anchor := doc.Find(e.schema.Anchor).First()
	if anchor.Length() == 0 {
		return page, links, 0, 0, nil
	}
	extractedAt := time.Now()
	anchor.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			// header row
			return
		}
		if cells.Length() < len(e.schema.Fields) {
			skippedRows++
			return
		}
		fields := make(map[string]interface{}, len(e.schema.Fields))
		malformed := false
		for col, field := range e.schema.Fields {
			text := strings.TrimSpace(cells.Eq(col).Text())
			switch field.Type {
			case vo.FieldNumber:
				value, errParse := strconv.ParseFloat(text, 64)
				if errParse != nil {
					malformed = true
				}
				fields[field.Name] = value
			default:
				fields[field.Name] = text
			}
			if malformed {
				break
			}
		}
		if malformed {
			skippedRows++
			return
		}
		emitted++
		emit(vo.Record{
			Fields:      fields,
			SourceURL:   pageURL.String(),
			ExtractedAt: extractedAt,
		})
	})
	return page, links, emitted, skippedRows, nil
}

// extractLinks collects href targets that normalize onto the page's own
// host and scheme. External links are not crawled.
func extractLinks(pageURL *url.URL, doc *goquery.Document) []string {
	seen := map[string]struct{}{}
	links := []string{}
	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		linkU, errNormalize := normalizeLink(pageURL, href)
		if errNormalize != nil {
			return
		}
		if linkU.Host != pageURL.Host || linkU.Scheme != pageURL.Scheme {
			return
		}
		link := linkU.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}
