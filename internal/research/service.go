package research

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"researchtools/internal/config"
	"researchtools/internal/inference"
	"researchtools/internal/store"
)

// InputError reports a rejected request field
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func badInput(field, format string, args ...any) error {
	return &InputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Repository is the research storage. *store.DB satisfies it.
type Repository interface {
	CreateProcessedURL(ctx context.Context, p *store.ProcessedURL) error
	GetProcessedURL(ctx context.Context, userID, id string) (*store.ProcessedURL, error)
	ListProcessedURLs(ctx context.Context, userID string, limit int) ([]*store.ProcessedURL, error)
	CreateCitation(ctx context.Context, c *store.Citation) error
	GetCitation(ctx context.Context, userID, id string) (*store.Citation, error)
	ListCitations(ctx context.Context, userID string) ([]*store.Citation, error)
	DeleteCitation(ctx context.Context, userID, id string) error
}

// Summarizer produces document summaries. *inference.Service satisfies it.
type Summarizer interface {
	SummarizeContent(ctx context.Context, content string, maxWords int) (*inference.Summary, error)
}

// Service implements the research tools
type Service struct {
	repo       Repository
	fetcher    *Fetcher
	wayback    *Wayback
	summarizer Summarizer
	cfg        config.ResearchConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates the research tool service
func NewService(repo Repository, summarizer Summarizer, cfg config.ResearchConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	fetcher := NewFetcher(cfg.FetchTimeout, cfg.UserAgent)
	s := &Service{
		repo:       repo,
		fetcher:    fetcher,
		summarizer: summarizer,
		cfg:        cfg,
		logger:     logger.Named("research"),
		now:        time.Now,
	}
	if cfg.WaybackEnabled {
		s.wayback = NewWayback(fetcher, cfg.WaybackEndpoint)
	}
	return s
}

// ParseTargetURL accepts absolute http(s) URLs only
func ParseTargetURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, badInput("url", "must be an absolute http or https URL")
	}
	return u, nil
}

// ProcessURL fetches rawURL, extracts its metadata and stores the result.
// Fetch failures are recorded on the row rather than returned.
func (s *Service) ProcessURL(ctx context.Context, userID, rawURL string, archive bool) (*store.ProcessedURL, error) {
	target, err := ParseTargetURL(rawURL)
	if err != nil {
		return nil, err
	}

	p := &store.ProcessedURL{
		ID:          uuid.NewString(),
		UserID:      userID,
		URL:         target.String(),
		Domain:      strings.ToLower(target.Hostname()),
		Reliability: ReliabilityScore(target.Hostname()),
		CreatedAt:   s.now(),
	}

	resp, err := s.fetcher.Get(ctx, p.URL)
	if err != nil {
		p.Error = err.Error()
		s.logger.Warn("url fetch failed", zap.String("url", p.URL), zap.Error(err))
	} else {
		p.StatusCode = resp.StatusCode
		p.ContentType = resp.ContentType
		if resp.StatusCode >= 400 {
			p.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		} else if resp.IsHTML() {
			if page, err := ParsePage(bytes.NewReader(resp.Body), resp.URL); err == nil {
				p.Title = page.Title
				p.Description = page.Description
				p.Author = page.Author
				p.PublishedDate = page.PublishedDate
				p.SiteName = page.SiteName
				p.WordCount = page.WordCount
			} else {
				p.Error = "parsing html: " + err.Error()
			}
		} else {
			p.WordCount = len(strings.Fields(string(resp.Body)))
		}
	}

	if archive && s.wayback != nil && p.Error == "" {
		snap, err := s.wayback.Archive(ctx, p.URL)
		if err != nil {
			s.logger.Warn("wayback archive failed", zap.String("url", p.URL), zap.Error(err))
		}
		p.ArchivedURL = snap
	}

	if err := s.repo.CreateProcessedURL(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProcessedURL returns one processed URL
func (s *Service) GetProcessedURL(ctx context.Context, userID, id string) (*store.ProcessedURL, error) {
	return s.repo.GetProcessedURL(ctx, userID, id)
}

// ListProcessedURLs returns the user's processed URLs, newest first
func (s *Service) ListProcessedURLs(ctx context.Context, userID string, limit int) ([]*store.ProcessedURL, error) {
	return s.repo.ListProcessedURLs(ctx, userID, limit)
}

var (
	governmentSuffixes = []string{".gov", ".mil", ".gov.uk", ".gc.ca", ".gov.au", ".europa.eu"}
	academicSuffixes   = []string{".edu", ".ac.uk", ".edu.au"}
	newsDomains        = []string{"reuters.com", "apnews.com", "bbc.co.uk", "bbc.com", "nytimes.com",
		"washingtonpost.com", "theguardian.com", "wsj.com", "ft.com", "economist.com", "npr.org"}
	referenceDomains = []string{"wikipedia.org", "britannica.com"}
	socialDomains    = []string{"twitter.com", "x.com", "facebook.com", "instagram.com", "tiktok.com",
		"reddit.com", "youtube.com", "linkedin.com", "medium.com", "substack.com"}
)

// ReliabilityScore is a heuristic source reliability in [0, 1] by domain class
func ReliabilityScore(host string) float64 {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	switch {
	case hasSuffix(host, governmentSuffixes):
		return 0.9
	case hasSuffix(host, academicSuffixes):
		return 0.85
	case matchesDomain(host, newsDomains):
		return 0.75
	case matchesDomain(host, referenceDomains):
		return 0.6
	case matchesDomain(host, socialDomains):
		return 0.3
	case strings.HasSuffix(host, ".org"):
		return 0.65
	}
	return 0.5
}

func hasSuffix(host string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
