package research

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const maxPageText = 20000

// ScrapeResult is the outcome of a bounded same-host crawl
type ScrapeResult struct {
	StartURL string        `json:"start_url"`
	Pages    []*Page       `json:"pages"`
	Failures []ItemFailure `json:"failures"`
}

// ItemFailure records one item that could not be processed
type ItemFailure struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// Scrape crawls breadth-first from startURL, following only links on the same
// host, until maxPages pages were fetched. maxPages <= 0 uses the configured
// limit.
func (s *Service) Scrape(ctx context.Context, startURL string, maxPages int) (*ScrapeResult, error) {
	start, err := ParseTargetURL(startURL)
	if err != nil {
		return nil, err
	}
	if maxPages <= 0 || maxPages > s.cfg.MaxScrapePages {
		maxPages = s.cfg.MaxScrapePages
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	start.Fragment = ""
	result := &ScrapeResult{StartURL: start.String(), Pages: []*Page{}, Failures: []ItemFailure{}}
	queue := []string{start.String()}
	visited := map[string]bool{start.String(): true}

	for len(queue) > 0 && len(result.Pages) < maxPages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		next := queue[0]
		queue = queue[1:]

		page, err := s.scrapePage(ctx, next)
		if err != nil {
			s.logger.Debug("scrape page failed", zap.String("url", next), zap.Error(err))
			result.Failures = append(result.Failures, ItemFailure{Item: next, Error: err.Error()})
			continue
		}
		result.Pages = append(result.Pages, page)

		for _, link := range page.Links {
			u, err := url.Parse(link)
			if err != nil || !strings.EqualFold(u.Host, start.Host) || visited[link] {
				continue
			}
			visited[link] = true
			queue = append(queue, link)
		}
	}
	return result, nil
}

func (s *Service) scrapePage(ctx context.Context, target string) (*Page, error) {
	resp, err := s.fetcher.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, badInput("url", "HTTP %d", resp.StatusCode)
	}
	if !resp.IsHTML() {
		text := string(resp.Body)
		return &Page{URL: target, Text: truncate(text, maxPageText), WordCount: len(strings.Fields(text)), Links: []string{}}, nil
	}
	page, err := ParsePage(bytes.NewReader(resp.Body), resp.URL)
	if err != nil {
		return nil, err
	}
	page.Text = truncate(page.Text, maxPageText)
	return page, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
