package research

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"researchtools/internal/inference"
)

const wordsPerMinute = 200

var textExtensions = map[string]bool{"": true, ".txt": true, ".md": true, ".markdown": true, ".csv": true, ".log": true}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true, "this": true, "from": true,
	"are": true, "was": true, "were": true, "have": true, "has": true, "not": true, "but": true,
	"they": true, "their": true, "which": true, "will": true, "would": true, "there": true,
	"been": true, "into": true, "its": true, "than": true, "also": true, "can": true, "our": true,
}

// DocumentInput is a plain-text document submitted for processing
type DocumentInput struct {
	Filename      string `json:"filename"`
	Content       string `json:"content"`
	SummaryWords  int    `json:"summary_words"`
	SkipSummary   bool   `json:"skip_summary"`
	TopTermsLimit int    `json:"top_terms"`
}

// TermCount is a term and its frequency
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// DocumentReport holds document statistics and an optional summary
type DocumentReport struct {
	Filename       string             `json:"filename"`
	Characters     int                `json:"characters"`
	Words          int                `json:"words"`
	Sentences      int                `json:"sentences"`
	Paragraphs     int                `json:"paragraphs"`
	ReadingMinutes int                `json:"reading_minutes"`
	TopTerms       []TermCount        `json:"top_terms"`
	Summary        *inference.Summary `json:"summary,omitempty"`
}

// ProcessDocument computes statistics for a plain-text document and asks the
// summarizer for a summary. Summary failures are logged and omitted.
func (s *Service) ProcessDocument(ctx context.Context, in DocumentInput) (*DocumentReport, error) {
	if !textExtensions[strings.ToLower(filepath.Ext(in.Filename))] {
		return nil, badInput("filename", "only plain-text documents are supported")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, badInput("content", "is required")
	}

	report := DocumentStats(in.Content, in.TopTermsLimit)
	report.Filename = in.Filename

	if !in.SkipSummary && s.summarizer != nil {
		sum, err := s.summarizer.SummarizeContent(ctx, in.Content, in.SummaryWords)
		if err != nil {
			s.logger.Warn("document summary failed", zap.String("filename", in.Filename), zap.Error(err))
		} else {
			report.Summary = sum
		}
	}
	return report, nil
}

// DocumentStats counts characters, words, sentences and paragraphs and returns
// the most frequent non-stopword terms.
func DocumentStats(content string, topTerms int) *DocumentReport {
	if topTerms <= 0 {
		topTerms = 10
	}
	words := strings.Fields(content)
	r := &DocumentReport{
		Characters: len([]rune(content)),
		Words:      len(words),
		TopTerms:   []TermCount{},
	}

	for _, para := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		if strings.TrimSpace(para) != "" {
			r.Paragraphs++
		}
	}
	r.Sentences = strings.Count(content, ".") + strings.Count(content, "!") + strings.Count(content, "?")
	if r.Sentences == 0 && r.Words > 0 {
		r.Sentences = 1
	}
	r.ReadingMinutes = (r.Words + wordsPerMinute - 1) / wordsPerMinute

	counts := map[string]int{}
	for _, w := range words {
		term := strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }))
		if len([]rune(term)) < 3 || stopWords[term] {
			continue
		}
		counts[term]++
	}
	for term, n := range counts {
		r.TopTerms = append(r.TopTerms, TermCount{Term: term, Count: n})
	}
	sort.Slice(r.TopTerms, func(i, j int) bool {
		if r.TopTerms[i].Count != r.TopTerms[j].Count {
			return r.TopTerms[i].Count > r.TopTerms[j].Count
		}
		return r.TopTerms[i].Term < r.TopTerms[j].Term
	})
	if len(r.TopTerms) > topTerms {
		r.TopTerms = r.TopTerms[:topTerms]
	}
	return r
}
