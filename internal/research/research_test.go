package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"researchtools/internal/config"
	"researchtools/internal/inference"
	"researchtools/internal/store"
)

const testUser = "user-1"

const articleHTML = `<!doctype html>
<html><head>
<title>  Grid Outage   Report </title>
<meta name="description" content="A summary of the outage.">
<meta name="author" content="Jane Doe">
<meta property="article:published_time" content="2024-03-01">
<meta property="og:site_name" content="Example Wire">
<script>var ignored = "do not count";</script>
</head><body>
<h1>Outage</h1><p>Power was lost across the region.</p>
<a href="/second">next</a> <a href="/second#frag">dup</a>
<a href="https://elsewhere.test/x">offsite</a> <a href="mailto:a@b.c">mail</a>
</body></html>`

// MockSummarizer implements Summarizer for testing
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) SummarizeContent(ctx context.Context, content string, maxWords int) (*inference.Summary, error) {
	args := m.Called(ctx, content, maxWords)
	if s, ok := args.Get(0).(*inference.Summary); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []map[string]interface{}
}

func (n *recordingNotifier) SendToUser(_, _ string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, data.(map[string]interface{}))
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML)
	})
	mux.HandleFunc("/second", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Second</title></head><body><a href="/third">3</a></body></html>`)
	})
	mux.HandleFunc("/third", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "plain words here")
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, summarizer Summarizer, cfg config.ResearchConfig) (*Service, *store.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "research.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateUser(ctx, &store.User{
		ID: testUser, Username: "researcher", Email: "r@example.com",
		Role: "researcher", IsActive: true, CreatedAt: time.Now(),
	}))
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.MaxScrapePages == 0 {
		cfg.MaxScrapePages = 10
	}
	return NewService(db, summarizer, cfg, zap.NewNop()), db
}

func TestParsePage(t *testing.T) {
	base, _ := url.Parse("https://news.example.com/story")
	p, err := ParsePage(strings.NewReader(articleHTML), base)
	require.NoError(t, err)

	assert.Equal(t, "Grid Outage Report", p.Title)
	assert.Equal(t, "A summary of the outage.", p.Description)
	assert.Equal(t, "Jane Doe", p.Author)
	assert.Equal(t, "2024-03-01", p.PublishedDate)
	assert.Equal(t, "Example Wire", p.SiteName)
	assert.NotContains(t, p.Text, "do not count")
	assert.Equal(t, []string{"https://news.example.com/second", "https://elsewhere.test/x"}, p.Links)
	assert.Equal(t, len(strings.Fields(p.Text)), p.WordCount)
}

func TestReliabilityScore(t *testing.T) {
	tests := []struct {
		host string
		want float64
	}{
		{"www.cdc.gov", 0.9},
		{"cs.stanford.edu", 0.85},
		{"www.reuters.com", 0.75},
		{"en.wikipedia.org", 0.6},
		{"x.com", 0.3},
		{"example.org", 0.65},
		{"example.com", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, ReliabilityScore(tt.host))
		})
	}
}

func TestProcessURL(t *testing.T) {
	site := newSite(t)
	svc, _ := newTestService(t, nil, config.ResearchConfig{})
	ctx := context.Background()

	p, err := svc.ProcessURL(ctx, testUser, site.URL+"/", false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, p.StatusCode)
	assert.Equal(t, "Grid Outage Report", p.Title)
	assert.Empty(t, p.Error)

	got, err := svc.GetProcessedURL(ctx, testUser, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Title, got.Title)

	missing, err := svc.ProcessURL(ctx, testUser, site.URL+"/missing", false)
	require.NoError(t, err)
	assert.Equal(t, "HTTP 404", missing.Error)

	_, err = svc.ProcessURL(ctx, testUser, "ftp://example.com/file", false)
	var ie *InputError
	assert.ErrorAs(t, err, &ie)

	list, err := svc.ListProcessedURLs(ctx, testUser, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestProcessURL_Wayback(t *testing.T) {
	site := newSite(t)
	archive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wayback/available", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"archived_snapshots": map[string]any{
				"closest": map[string]any{"available": true, "url": "https://web.archive.org/web/1/" + r.URL.Query().Get("url")},
			},
		})
	}))
	defer archive.Close()

	svc, _ := newTestService(t, nil, config.ResearchConfig{WaybackEnabled: true, WaybackEndpoint: archive.URL})
	p, err := svc.ProcessURL(context.Background(), testUser, site.URL+"/", true)
	require.NoError(t, err)
	assert.Equal(t, "https://web.archive.org/web/1/"+site.URL+"/", p.ArchivedURL)
}

func TestScrape_SameHostBounded(t *testing.T) {
	site := newSite(t)
	svc, _ := newTestService(t, nil, config.ResearchConfig{MaxScrapePages: 2})

	res, err := svc.Scrape(context.Background(), site.URL+"/", 0)
	require.NoError(t, err)
	require.Len(t, res.Pages, 2)
	assert.Equal(t, "Grid Outage Report", res.Pages[0].Title)
	assert.Equal(t, "Second", res.Pages[1].Title)
	for _, p := range res.Pages {
		assert.True(t, strings.HasPrefix(p.URL, site.URL))
	}

	res, err = svc.Scrape(context.Background(), site.URL+"/", 50)
	require.NoError(t, err)
	assert.Len(t, res.Pages, 2, "request limit cannot exceed the configured maximum")
}

func citation() *store.Citation {
	return &store.Citation{
		SourceType: "journal",
		Title:      "Reading the adversary",
		Authors:    []string{"Jane Q. Doe", "Smith, John"},
		Year:       "2021",
		Container:  "Journal of Analysis",
		Volume:     "12",
		Issue:      "3",
		Pages:      "45-67",
		DOI:        "10.1000/xyz",
	}
}

func TestFormatCitation(t *testing.T) {
	tests := []struct {
		style string
		want  string
	}{
		{"apa", "Doe, J. Q., & Smith, J. (2021). Reading the adversary. Journal of Analysis, 12(3), 45-67. https://doi.org/10.1000/xyz"},
		{"MLA", "Doe, Jane Q., and John Smith. \"Reading the adversary.\" Journal of Analysis, vol. 12, no. 3, 2021, pp. 45-67."},
		{"chicago", "Doe, Jane Q., and John Smith. 2021. \"Reading the adversary.\" Journal of Analysis 12 (3): 45-67. https://doi.org/10.1000/xyz."},
	}
	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			got, err := FormatCitation(citation(), tt.style)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("bibtex", func(t *testing.T) {
		got, err := FormatCitation(citation(), "bibtex")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, "@article{doe2021reading,"))
		assert.Contains(t, got, "author = {Doe, Jane Q. and Smith, John}")
		assert.Contains(t, got, "pages = {45--67}")
		assert.Contains(t, got, "journal = {Journal of Analysis}")
	})

	t.Run("unknown style", func(t *testing.T) {
		_, err := FormatCitation(citation(), "harvard")
		var ie *InputError
		require.ErrorAs(t, err, &ie)
		assert.Contains(t, ie.Message, "apa, mla, chicago, bibtex")
	})

	t.Run("no authors or year", func(t *testing.T) {
		got, err := FormatCitation(&store.Citation{Title: "Untitled note", URL: "https://example.com"}, "apa")
		require.NoError(t, err)
		assert.Equal(t, "(n.d.). Untitled note. https://example.com", got)
	})
}

func TestCitationCRUD(t *testing.T) {
	svc, _ := newTestService(t, nil, config.ResearchConfig{})
	ctx := context.Background()

	_, err := svc.CreateCitation(ctx, testUser, CitationInput{Title: " "})
	assert.Error(t, err)
	_, err = svc.CreateCitation(ctx, testUser, CitationInput{Title: "x", SourceType: "podcast"})
	assert.Error(t, err)

	c, err := svc.CreateCitation(ctx, testUser, CitationInput{
		Title: "Reading the adversary", Authors: []string{"Jane Doe", " "}, Year: "2021", SourceType: "Book",
	})
	require.NoError(t, err)
	assert.Equal(t, "book", c.SourceType)
	assert.Equal(t, []string{"Jane Doe"}, c.Authors)

	f, err := svc.FormatStoredCitation(ctx, testUser, c.ID, "apa")
	require.NoError(t, err)
	assert.Equal(t, "Doe, J. (2021). Reading the adversary.", f.Text)

	_, err = svc.GetCitation(ctx, "someone-else", c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.DeleteCitation(ctx, testUser, c.ID))
	list, err := svc.ListCitations(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProcessDocument(t *testing.T) {
	summarizer := new(MockSummarizer)
	svc, _ := newTestService(t, summarizer, config.ResearchConfig{})
	content := "Alpha beta gamma. Alpha beta!\n\nAlpha delta? The end."

	summarizer.On("SummarizeContent", mock.Anything, content, 50).
		Return(&inference.Summary{Summary: "Alpha things.", KeyPoints: []string{}}, nil).Once()

	rep, err := svc.ProcessDocument(context.Background(), DocumentInput{Filename: "notes.txt", Content: content, SummaryWords: 50})
	require.NoError(t, err)
	assert.Equal(t, 9, rep.Words)
	assert.Equal(t, 4, rep.Sentences)
	assert.Equal(t, 2, rep.Paragraphs)
	assert.Equal(t, 1, rep.ReadingMinutes)
	require.NotEmpty(t, rep.TopTerms)
	assert.Equal(t, TermCount{Term: "alpha", Count: 3}, rep.TopTerms[0])
	require.NotNil(t, rep.Summary)
	assert.Equal(t, "Alpha things.", rep.Summary.Summary)
	summarizer.AssertExpectations(t)

	_, err = svc.ProcessDocument(context.Background(), DocumentInput{Filename: "report.pdf", Content: "x"})
	assert.Error(t, err)
	_, err = svc.ProcessDocument(context.Background(), DocumentInput{Filename: "a.txt", Content: "  "})
	assert.Error(t, err)
}

func TestDetectPlatform(t *testing.T) {
	tests := map[string]string{
		"https://twitter.com/user/status/1": "twitter",
		"https://x.com/user":                "twitter",
		"https://www.youtube.com/watch?v=1": "youtube",
		"https://youtu.be/abc":              "youtube",
		"https://old.reddit.com/r/osint":    "reddit",
		"https://example.com/post":          "unknown",
		"not a url":                         "unknown",
	}
	for raw, want := range tests {
		assert.Equal(t, want, DetectPlatform(raw), raw)
	}

	item, err := SimulateSocialDownload("https://www.instagram.com/p/1")
	require.NoError(t, err)
	assert.Equal(t, "simulated", item.Status)
	assert.Equal(t, "instagram", item.Platform)
}

func TestJobManager_URLBatch(t *testing.T) {
	site := newSite(t)
	svc, db := newTestService(t, nil, config.ResearchConfig{})
	notifier := &recordingNotifier{}
	jm := NewJobManager(svc, db, notifier, time.Millisecond, zap.NewNop())
	defer jm.Stop()
	ctx := context.Background()

	input, _ := json.Marshal(map[string]any{"urls": []string{site.URL + "/", site.URL + "/missing"}})
	job, err := jm.Submit(ctx, testUser, JobRequest{JobType: "url_batch", Input: input})
	require.NoError(t, err)
	assert.Equal(t, JobPending, job.Status)

	jm.Wait()

	got, err := jm.Get(ctx, testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
	assert.Equal(t, float64(100), got.Progress)
	require.NotNil(t, got.CompletedAt)

	var result JobResult
	require.NoError(t, json.Unmarshal([]byte(got.ResultData), &result))
	assert.Len(t, result.Results, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, site.URL+"/missing", result.Failures[0].Item)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.NotEmpty(t, notifier.messages)
	assert.Equal(t, JobCompleted, notifier.messages[len(notifier.messages)-1]["status"])
}

func TestJobManager_AllItemsFail(t *testing.T) {
	site := newSite(t)
	svc, db := newTestService(t, nil, config.ResearchConfig{})
	jm := NewJobManager(svc, db, nil, 0, zap.NewNop())
	defer jm.Stop()

	input, _ := json.Marshal(map[string]any{"urls": []string{site.URL + "/missing"}})
	job, err := jm.Submit(context.Background(), testUser, JobRequest{JobType: "url_batch", Input: input})
	require.NoError(t, err)
	jm.Wait()

	got, err := jm.Get(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.Equal(t, "all 1 item(s) failed", got.ErrorMessage)
}

func TestJobManager_Cancel(t *testing.T) {
	svc, db := newTestService(t, nil, config.ResearchConfig{})
	jm := NewJobManager(svc, db, nil, time.Hour, zap.NewNop())
	defer jm.Stop()
	ctx := context.Background()

	input, _ := json.Marshal(map[string]any{"urls": []string{"https://a.example/1", "https://a.example/2"}})
	job, err := jm.Submit(ctx, testUser, JobRequest{JobType: "social_media", Input: input})
	require.NoError(t, err)

	cancelled, err := jm.Cancel(ctx, testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCancelled, cancelled.Status)
	jm.Wait()

	got, err := jm.Get(ctx, testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCancelled, got.Status)
	assert.Equal(t, 0, jm.Active())

	_, err = jm.Cancel(ctx, testUser, job.ID)
	assert.ErrorIs(t, err, ErrJobFinished)
}

func TestJobManager_StopMarksRunningJobsFailed(t *testing.T) {
	svc, db := newTestService(t, nil, config.ResearchConfig{})
	jm := NewJobManager(svc, db, nil, time.Hour, zap.NewNop())
	ctx := context.Background()

	input, _ := json.Marshal(map[string]any{"urls": []string{"https://a.example/1", "https://a.example/2"}})
	job, err := jm.Submit(ctx, testUser, JobRequest{JobType: "social_media", Input: input})
	require.NoError(t, err)

	jm.Stop()

	got, err := jm.Get(ctx, testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "interrupted by shutdown")
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 0, jm.Active())
}

func TestJobManager_RejectsBadInput(t *testing.T) {
	svc, db := newTestService(t, nil, config.ResearchConfig{})
	jm := NewJobManager(svc, db, nil, 0, zap.NewNop())
	defer jm.Stop()

	tests := []struct {
		name string
		req  JobRequest
	}{
		{"unknown type", JobRequest{JobType: "crawl", Input: json.RawMessage(`{}`)}},
		{"missing input", JobRequest{JobType: "url_batch"}},
		{"empty batch", JobRequest{JobType: "url_batch", Input: json.RawMessage(`{"urls": []}`)}},
		{"bad url", JobRequest{JobType: "social_media", Input: json.RawMessage(`{"urls": ["nope"]}`)}},
		{"no documents", JobRequest{JobType: "document", Input: json.RawMessage(`{"documents": []}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jm.Submit(context.Background(), testUser, tt.req)
			var ie *InputError
			assert.ErrorAs(t, err, &ie)
		})
	}
}
