package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns the href attribute of every anchor in html, in
// document order. Anchors without an href are skipped; values are not
// resolved or filtered.
func ExtractLinks(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	links := make([]string, 0)
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, href)
		}
	})
	return links, nil
}
