package research

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"researchtools/internal/store"
)

// Citation styles
const (
	StyleAPA     = "apa"
	StyleMLA     = "mla"
	StyleChicago = "chicago"
	StyleBibTeX  = "bibtex"
)

// Styles lists the supported citation styles
var Styles = []string{StyleAPA, StyleMLA, StyleChicago, StyleBibTeX}

// SourceTypes lists the accepted citation source types
var SourceTypes = []string{"book", "journal", "website", "news", "report"}

// CitationInput is the payload for creating a citation
type CitationInput struct {
	SourceType   string   `json:"source_type"`
	Title        string   `json:"title"`
	Authors      []string `json:"authors"`
	Year         string   `json:"year"`
	Publisher    string   `json:"publisher"`
	Container    string   `json:"container"`
	Volume       string   `json:"volume"`
	Issue        string   `json:"issue"`
	Pages        string   `json:"pages"`
	URL          string   `json:"url"`
	DOI          string   `json:"doi"`
	AccessedDate string   `json:"accessed_date"`
	Notes        string   `json:"notes"`
}

// FormattedCitation is a citation rendered in one style
type FormattedCitation struct {
	CitationID string `json:"citation_id"`
	Style      string `json:"style"`
	Text       string `json:"text"`
}

// CreateCitation validates and stores a citation
func (s *Service) CreateCitation(ctx context.Context, userID string, in CitationInput) (*store.Citation, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, badInput("title", "is required")
	}
	sourceType := strings.ToLower(strings.TrimSpace(in.SourceType))
	if sourceType == "" {
		sourceType = "website"
	}
	if !contains(SourceTypes, sourceType) {
		return nil, badInput("source_type", "must be one of %s", strings.Join(SourceTypes, ", "))
	}
	authors := make([]string, 0, len(in.Authors))
	for _, a := range in.Authors {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}

	c := &store.Citation{
		ID:           uuid.NewString(),
		UserID:       userID,
		SourceType:   sourceType,
		Title:        strings.TrimSpace(in.Title),
		Authors:      authors,
		Year:         strings.TrimSpace(in.Year),
		Publisher:    in.Publisher,
		Container:    in.Container,
		Volume:       in.Volume,
		Issue:        in.Issue,
		Pages:        in.Pages,
		URL:          in.URL,
		DOI:          in.DOI,
		AccessedDate: in.AccessedDate,
		Notes:        in.Notes,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateCitation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCitation returns one citation
func (s *Service) GetCitation(ctx context.Context, userID, id string) (*store.Citation, error) {
	return s.repo.GetCitation(ctx, userID, id)
}

// ListCitations returns the user's citations
func (s *Service) ListCitations(ctx context.Context, userID string) ([]*store.Citation, error) {
	return s.repo.ListCitations(ctx, userID)
}

// DeleteCitation removes a citation
func (s *Service) DeleteCitation(ctx context.Context, userID, id string) error {
	return s.repo.DeleteCitation(ctx, userID, id)
}

// FormatStoredCitation loads a citation and renders it in style
func (s *Service) FormatStoredCitation(ctx context.Context, userID, id, style string) (*FormattedCitation, error) {
	c, err := s.repo.GetCitation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	text, err := FormatCitation(c, style)
	if err != nil {
		return nil, err
	}
	return &FormattedCitation{CitationID: c.ID, Style: strings.ToLower(style), Text: text}, nil
}

// FormatCitation renders c in one of Styles
func FormatCitation(c *store.Citation, style string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(style)) {
	case StyleAPA:
		return formatAPA(c), nil
	case StyleMLA:
		return formatMLA(c), nil
	case StyleChicago:
		return formatChicago(c), nil
	case StyleBibTeX:
		return formatBibTeX(c), nil
	}
	return "", badInput("style", "must be one of %s", strings.Join(Styles, ", "))
}

type personName struct {
	given  []string
	family string
}

// splitName treats "Family, Given" and "Given Middle Family" forms.
func splitName(full string) personName {
	full = strings.TrimSpace(full)
	if family, given, ok := strings.Cut(full, ","); ok {
		return personName{given: strings.Fields(given), family: strings.TrimSpace(family)}
	}
	parts := strings.Fields(full)
	if len(parts) <= 1 {
		return personName{family: full}
	}
	return personName{given: parts[:len(parts)-1], family: parts[len(parts)-1]}
}

func (n personName) initials() string {
	out := make([]string, 0, len(n.given))
	for _, g := range n.given {
		r := []rune(g)
		out = append(out, string(unicode.ToUpper(r[0]))+".")
	}
	return strings.Join(out, " ")
}

func (n personName) inverted() string {
	if len(n.given) == 0 {
		return n.family
	}
	return n.family + ", " + strings.Join(n.given, " ")
}

func (n personName) natural() string {
	if len(n.given) == 0 {
		return n.family
	}
	return strings.Join(n.given, " ") + " " + n.family
}

func formatAPA(c *store.Citation) string {
	names := make([]string, 0, len(c.Authors))
	for _, a := range c.Authors {
		n := splitName(a)
		if in := n.initials(); in != "" {
			names = append(names, n.family+", "+in)
		} else {
			names = append(names, n.family)
		}
	}

	var b strings.Builder
	switch len(names) {
	case 0:
	case 1:
		b.WriteString(names[0] + " ")
	case 2:
		b.WriteString(names[0] + ", & " + names[1] + " ")
	default:
		b.WriteString(strings.Join(names[:len(names)-1], ", ") + ", & " + names[len(names)-1] + " ")
	}
	year := c.Year
	if year == "" {
		year = "n.d."
	}
	fmt.Fprintf(&b, "(%s). %s.", year, strings.TrimSuffix(c.Title, "."))

	if c.Container != "" {
		b.WriteString(" " + c.Container)
		if c.Volume != "" {
			b.WriteString(", " + c.Volume)
			if c.Issue != "" {
				b.WriteString("(" + c.Issue + ")")
			}
		}
		if c.Pages != "" {
			b.WriteString(", " + c.Pages)
		}
		b.WriteString(".")
	} else if c.Publisher != "" {
		b.WriteString(" " + c.Publisher + ".")
	}

	if c.DOI != "" {
		b.WriteString(" https://doi.org/" + strings.TrimPrefix(c.DOI, "https://doi.org/"))
	} else if c.URL != "" {
		b.WriteString(" " + c.URL)
	}
	return b.String()
}

func mlaAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return splitName(authors[0]).inverted() + ". "
	case 2:
		return splitName(authors[0]).inverted() + ", and " + splitName(authors[1]).natural() + ". "
	}
	return splitName(authors[0]).inverted() + ", et al. "
}

func formatMLA(c *store.Citation) string {
	var b strings.Builder
	b.WriteString(mlaAuthors(c.Authors))
	title := strings.TrimSuffix(c.Title, ".")
	if c.Container != "" {
		fmt.Fprintf(&b, "\"%s.\" %s", title, c.Container)
		if c.Volume != "" {
			b.WriteString(", vol. " + c.Volume)
		}
		if c.Issue != "" {
			b.WriteString(", no. " + c.Issue)
		}
	} else {
		b.WriteString(title)
		if c.Publisher != "" {
			b.WriteString(". " + c.Publisher)
		}
	}
	if c.Year != "" {
		b.WriteString(", " + c.Year)
	}
	if c.Pages != "" {
		b.WriteString(", pp. " + c.Pages)
	}
	if c.URL != "" {
		b.WriteString(", " + strings.TrimPrefix(strings.TrimPrefix(c.URL, "https://"), "http://"))
	}
	b.WriteString(".")
	if c.AccessedDate != "" {
		b.WriteString(" Accessed " + c.AccessedDate + ".")
	}
	return b.String()
}

func formatChicago(c *store.Citation) string {
	var b strings.Builder
	switch n := len(c.Authors); {
	case n == 1:
		b.WriteString(splitName(c.Authors[0]).inverted() + ". ")
	case n > 1:
		rest := make([]string, 0, n-1)
		for _, a := range c.Authors[1:] {
			rest = append(rest, splitName(a).natural())
		}
		b.WriteString(splitName(c.Authors[0]).inverted())
		if len(rest) > 1 {
			b.WriteString(", " + strings.Join(rest[:len(rest)-1], ", "))
		}
		b.WriteString(", and " + rest[len(rest)-1] + ". ")
	}
	year := c.Year
	if year == "" {
		year = "n.d."
	}
	b.WriteString(year + ". ")

	title := strings.TrimSuffix(c.Title, ".")
	if c.Container != "" {
		fmt.Fprintf(&b, "\"%s.\" %s", title, c.Container)
		if c.Volume != "" {
			b.WriteString(" " + c.Volume)
		}
		if c.Issue != "" {
			b.WriteString(" (" + c.Issue + ")")
		}
		if c.Pages != "" {
			b.WriteString(": " + c.Pages)
		}
		b.WriteString(".")
	} else {
		b.WriteString(title + ".")
		if c.Publisher != "" {
			b.WriteString(" " + c.Publisher + ".")
		}
	}
	if c.DOI != "" {
		b.WriteString(" https://doi.org/" + strings.TrimPrefix(c.DOI, "https://doi.org/") + ".")
	} else if c.URL != "" {
		b.WriteString(" " + c.URL + ".")
	}
	return b.String()
}

func formatBibTeX(c *store.Citation) string {
	entry := "misc"
	switch c.SourceType {
	case "journal":
		entry = "article"
	case "book":
		entry = "book"
	case "report":
		entry = "techreport"
	}

	authors := make([]string, 0, len(c.Authors))
	for _, a := range c.Authors {
		authors = append(authors, splitName(a).inverted())
	}

	fields := [][2]string{
		{"author", strings.Join(authors, " and ")},
		{"title", c.Title},
		{"journal", ifEntry(entry == "article", c.Container)},
		{"howpublished", ifEntry(entry == "misc", c.Container)},
		{"year", c.Year},
		{"volume", c.Volume},
		{"number", c.Issue},
		{"pages", strings.ReplaceAll(c.Pages, "-", "--")},
		{"publisher", ifEntry(entry == "book", c.Publisher)},
		{"institution", ifEntry(entry == "techreport", c.Publisher)},
		{"doi", c.DOI},
		{"url", c.URL},
		{"note", c.Notes},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "@%s{%s", entry, bibKey(c))
	for _, f := range fields {
		if f[1] != "" {
			fmt.Fprintf(&b, ",\n  %s = {%s}", f[0], f[1])
		}
	}
	b.WriteString("\n}")
	return b.String()
}

func ifEntry(ok bool, v string) string {
	if ok {
		return v
	}
	return ""
}

// bibKey is {family}{year}{first title word}, lowercased ASCII letters and digits
func bibKey(c *store.Citation) string {
	var raw string
	if len(c.Authors) > 0 {
		raw = splitName(c.Authors[0]).family
	} else {
		raw = "anon"
	}
	raw += c.Year
	if words := strings.Fields(c.Title); len(words) > 0 {
		raw += words[0]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
