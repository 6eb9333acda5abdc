package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBodyBytes = 5 << 20

// Fetcher performs GET requests with a fixed user agent and body limit
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a fetcher. A zero timeout leaves the client unbounded.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Response is a fetched document
type Response struct {
	URL         *url.URL
	StatusCode  int
	ContentType string
	Body        []byte
}

// IsHTML reports whether the response carries an HTML document
func (r *Response) IsHTML() bool {
	return strings.Contains(r.ContentType, "html") || r.ContentType == ""
}

// Get fetches rawURL. Non-2xx statuses are returned, not treated as errors.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return &Response{
		URL:         resp.Request.URL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Wayback looks up and requests Wayback Machine snapshots
type Wayback struct {
	fetcher  *Fetcher
	endpoint string
}

// NewWayback creates a client for the archive at endpoint
func NewWayback(fetcher *Fetcher, endpoint string) *Wayback {
	return &Wayback{fetcher: fetcher, endpoint: strings.TrimRight(endpoint, "/")}
}

type availability struct {
	ArchivedSnapshots struct {
		Closest *struct {
			Available bool   `json:"available"`
			URL       string `json:"url"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// Closest returns the closest existing snapshot URL, or "" when there is none.
func (w *Wayback) Closest(ctx context.Context, target string) (string, error) {
	resp, err := w.fetcher.Get(ctx, w.endpoint+"/wayback/available?url="+url.QueryEscape(target))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wayback availability returned %d", resp.StatusCode)
	}
	var a availability
	if err := json.Unmarshal(resp.Body, &a); err != nil {
		return "", fmt.Errorf("decoding wayback availability: %w", err)
	}
	if c := a.ArchivedSnapshots.Closest; c != nil && c.Available {
		return c.URL, nil
	}
	return "", nil
}

// Save asks the archive to capture target and returns the snapshot URL.
func (w *Wayback) Save(ctx context.Context, target string) (string, error) {
	resp, err := w.fetcher.Get(ctx, w.endpoint+"/save/"+target)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("wayback save returned %d", resp.StatusCode)
	}
	return resp.URL.String(), nil
}

// Archive returns an existing snapshot or requests a new one
func (w *Wayback) Archive(ctx context.Context, target string) (string, error) {
	if snap, err := w.Closest(ctx, target); err == nil && snap != "" {
		return snap, nil
	}
	return w.Save(ctx, target)
}
