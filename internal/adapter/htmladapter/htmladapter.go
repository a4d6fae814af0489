package htmladapter

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/jgivc/treemirror/internal/entity"
)

// skipHrefs are self, parent and index markers that never lead deeper
// into the tree.
var skipHrefs = map[string]struct{}{
	"../":        {},
	"./":         {},
	"/":          {},
	"index.html": {},
	"index.htm":  {},
}

// ParseListing extracts anchor targets from a directory listing page and
// resolves them against the page's own URL. A target whose href ends in a
// path separator is a directory. Hrefs carrying a query component are
// dropped, server-generated sort links are not part of the tree.
func ParseListing(pageURL string, body []byte) ([]entity.Link, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cannot parse page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse page url: %w", err)
	}

	var links []entity.Link

	var walker func(*html.Node)
	walker = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}

				href := strings.TrimSpace(attr.Val)
				if href == "" {
					continue
				}

				if _, skip := skipHrefs[href]; skip {
					continue
				}
				if strings.Contains(href, "?") {
					continue
				}

				ref, err := url.Parse(href)
				if err != nil {
					continue
				}

				absolute := base.ResolveReference(ref)
				if absolute.Scheme != "http" && absolute.Scheme != "https" {
					continue
				}

				links = append(links, entity.Link{
					URL:   absolute.String(),
					IsDir: strings.HasSuffix(href, "/"),
				})
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c)
		}
	}

	walker(doc)

	return links, nil
}
