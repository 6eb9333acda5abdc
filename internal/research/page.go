package research

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Page is the metadata and text extracted from one HTML document
type Page struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Author        string   `json:"author"`
	PublishedDate string   `json:"published_date"`
	SiteName      string   `json:"site_name"`
	Text          string   `json:"text"`
	Links         []string `json:"links"`
	WordCount     int      `json:"word_count"`
}

var spaceRun = regexp.MustCompile(`\s+`)

// ParsePage parses an HTML document. Links are resolved against base and only
// http(s) links are kept, without fragments and without duplicates.
func ParsePage(r io.Reader, base *url.URL) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	p := &Page{Links: []string{}}
	if base != nil {
		p.URL = base.String()
	}
	meta := map[string]string{}
	seen := map[string]bool{}
	var text strings.Builder

	var walk func(n *html.Node, depth int)
	walk = func(n *html.Node, depth int) {
		if depth > 200 {
			return
		}
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				text.WriteString(t)
				text.WriteByte(' ')
			}
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg", "template":
				return
			case "title":
				if p.Title == "" && n.FirstChild != nil {
					p.Title = collapse(n.FirstChild.Data)
				}
				return
			case "meta":
				key := strings.ToLower(firstAttr(n, "property", "name", "itemprop"))
				if key != "" {
					if _, ok := meta[key]; !ok {
						meta[key] = collapse(attr(n, "content"))
					}
				}
			case "a":
				if link := resolveLink(base, attr(n, "href")); link != "" && !seen[link] {
					seen[link] = true
					p.Links = append(p.Links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, depth+1)
		}
	}
	walk(doc, 0)

	if p.Title == "" {
		p.Title = meta["og:title"]
	}
	p.Description = pick(meta, "description", "og:description", "twitter:description")
	p.Author = pick(meta, "author", "article:author", "dc.creator")
	p.PublishedDate = pick(meta, "article:published_time", "datepublished", "date", "pubdate", "dc.date")
	p.SiteName = pick(meta, "og:site_name", "application-name")
	p.Text = collapse(text.String())
	p.WordCount = len(strings.Fields(p.Text))
	return p, nil
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func pick(meta map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := meta[k]; v != "" {
			return v
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func firstAttr(n *html.Node, keys ...string) string {
	for _, k := range keys {
		if v := attr(n, k); v != "" {
			return v
		}
	}
	return ""
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
