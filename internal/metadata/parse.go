package metadata

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Parse reads the metadata fields out of an HTML document. Relative favicon
// links are resolved against pageURL.
func Parse(pageURL *url.URL, body []byte) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}
	return Result{
		Title: firstNonEmpty(
			documentTitle(doc),
			metaContent(doc, `meta[property="og:title"]`),
		),
		Description: firstNonEmpty(
			metaContent(doc, `meta[name="description"]`),
			metaContent(doc, `meta[property="og:description"]`),
		),
		Thumbnail: metaContent(doc, `meta[property="og:image"]`),
		Favicon:   favicon(doc, pageURL),
	}, nil
}

// documentTitle prefers the head title and ignores titles nested in inline
// SVG, which label icons rather than the page.
func documentTitle(doc *goquery.Document) string {
	if title := doc.Find("head > title").First(); title.Length() > 0 {
		return title.Text()
	}
	return doc.Find("title").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("svg").Length() == 0
	}).First().Text()
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func favicon(doc *goquery.Document, pageURL *url.URL) string {
	href := firstNonEmpty(
		linkHref(doc, `link[rel="icon"]`),
		linkHref(doc, `link[rel="shortcut icon"]`),
	)
	base := *pageURL
	base.User = nil
	base.RawQuery = ""
	base.ForceQuery = false
	base.Fragment = ""
	base.RawFragment = ""
	if href == "" {
		return base.Scheme + "://" + base.Host + "/favicon.ico"
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}
	return base.ResolveReference(ref).String()
}

func linkHref(doc *goquery.Document, selector string) string {
	href, _ := doc.Find(selector).First().Attr("href")
	return strings.TrimSpace(href)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
