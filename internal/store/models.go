package store

import (
	"strings"
	"time"
)

// User is an account row. Role values are interpreted by the auth package.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	HashedPassword string     `json:"-"`
	Role           string     `json:"role"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

// AccountHash is a registered login hash. Only the digest is stored.
type AccountHash struct {
	Digest    string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	LastUsed  *time.Time
}

// Usable reports whether the hash may still be used to log in at now.
func (h *AccountHash) Usable(now time.Time) bool {
	return h.RevokedAt == nil && now.Before(h.ExpiresAt)
}

// FrameworkSession is the stored form of an analysis session. Data and
// AISuggestions hold JSON documents whose shape depends on FrameworkType.
type FrameworkSession struct {
	ID            string
	UserID        string
	Title         string
	Description   string
	FrameworkType string
	Status        string
	Data          string
	Version       int
	Tags          []string
	AISuggestions string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SessionFilter narrows ListSessions
type SessionFilter struct {
	FrameworkType string
	Status        string
	Limit         int
	Offset        int
}

// ProcessedURL records the metadata extracted from one fetched URL
type ProcessedURL struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	URL           string    `json:"url"`
	Domain        string    `json:"domain"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Author        string    `json:"author"`
	PublishedDate string    `json:"published_date"`
	SiteName      string    `json:"site_name"`
	ContentType   string    `json:"content_type"`
	StatusCode    int       `json:"status_code"`
	WordCount     int       `json:"word_count"`
	ArchivedURL   string    `json:"archived_url,omitempty"`
	Reliability   float64   `json:"reliability_score"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Citation is a bibliographic record
type Citation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SourceType   string    `json:"source_type"`
	Title        string    `json:"title"`
	Authors      []string  `json:"authors"`
	Year         string    `json:"year"`
	Publisher    string    `json:"publisher"`
	Container    string    `json:"container"` // journal or website name
	Volume       string    `json:"volume"`
	Issue        string    `json:"issue"`
	Pages        string    `json:"pages"`
	URL          string    `json:"url"`
	DOI          string    `json:"doi"`
	AccessedDate string    `json:"accessed_date"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
}

// ResearchJob tracks a background job. RetryCount and MaxRetries are carried
// for API compatibility; nothing increments RetryCount.
type ResearchJob struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	JobType      string     `json:"job_type"`
	Status       string     `json:"status"`
	Progress     float64    `json:"progress"`
	Message      string     `json:"message"`
	InputData    string     `json:"-"`
	ResultData   string     `json:"-"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
