package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const processedURLColumns = `id, user_id, url, domain, title, description, author, published_date, site_name,
	content_type, status_code, word_count, archived_url, reliability, error, created_at`

// CreateProcessedURL stores the result of processing one URL
func (d *DB) CreateProcessedURL(ctx context.Context, p *ProcessedURL) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO processed_urls (`+processedURLColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.URL, p.Domain, p.Title, p.Description, p.Author, p.PublishedDate, p.SiteName,
		p.ContentType, p.StatusCode, p.WordCount, p.ArchivedURL, p.Reliability, p.Error, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting processed url: %w", err)
	}
	return nil
}

// GetProcessedURL fetches one processed URL owned by userID
func (d *DB) GetProcessedURL(ctx context.Context, userID, id string) (*ProcessedURL, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+processedURLColumns+` FROM processed_urls WHERE id = ? AND user_id = ?`, id, userID)
	return scanProcessedURL(row)
}

// ListProcessedURLs returns the user's processed URLs, newest first
func (d *DB) ListProcessedURLs(ctx context.Context, userID string, limit int) ([]*ProcessedURL, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+processedURLColumns+` FROM processed_urls WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing processed urls: %w", err)
	}
	defer rows.Close()

	var out []*ProcessedURL
	for rows.Next() {
		p, err := scanProcessedURL(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProcessedURL(row rowScanner) (*ProcessedURL, error) {
	var (
		p         ProcessedURL
		createdAt string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.URL, &p.Domain, &p.Title, &p.Description, &p.Author,
		&p.PublishedDate, &p.SiteName, &p.ContentType, &p.StatusCode, &p.WordCount, &p.ArchivedURL,
		&p.Reliability, &p.Error, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning processed url: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const citationColumns = `id, user_id, source_type, title, authors, year, publisher, container, volume, issue,
	pages, url, doi, accessed_date, notes, created_at`

// CreateCitation stores a citation
func (d *DB) CreateCitation(ctx context.Context, c *Citation) error {
	authors, err := encodeStrings(c.Authors)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx,
		`INSERT INTO citations (`+citationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.SourceType, c.Title, authors, c.Year, c.Publisher, c.Container, c.Volume, c.Issue,
		c.Pages, c.URL, c.DOI, c.AccessedDate, c.Notes, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting citation: %w", err)
	}
	return nil
}

// GetCitation fetches one citation owned by userID
func (d *DB) GetCitation(ctx context.Context, userID, id string) (*Citation, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+citationColumns+` FROM citations WHERE id = ? AND user_id = ?`, id, userID)
	return scanCitation(row)
}

// ListCitations returns the user's citations ordered by title
func (d *DB) ListCitations(ctx context.Context, userID string) ([]*Citation, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+citationColumns+` FROM citations WHERE user_id = ? ORDER BY title COLLATE NOCASE`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing citations: %w", err)
	}
	defer rows.Close()

	var out []*Citation
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCitation removes a citation owned by userID
func (d *DB) DeleteCitation(ctx context.Context, userID, id string) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM citations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting citation: %w", err)
	}
	return checkAffected(res)
}

func scanCitation(row rowScanner) (*Citation, error) {
	var (
		c                  Citation
		authors, createdAt string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.SourceType, &c.Title, &authors, &c.Year, &c.Publisher,
		&c.Container, &c.Volume, &c.Issue, &c.Pages, &c.URL, &c.DOI, &c.AccessedDate, &c.Notes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning citation: %w", err)
	}
	if c.Authors, err = decodeStrings(authors); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

const jobColumns = `id, user_id, job_type, status, progress, message, input_data, result_data, error_message,
	retry_count, max_retries, created_at, started_at, completed_at`

// CreateJob stores a new research job
func (d *DB) CreateJob(ctx context.Context, j *ResearchJob) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO research_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.UserID, j.JobType, j.Status, j.Progress, j.Message, j.InputData, j.ResultData, j.ErrorMessage,
		j.RetryCount, j.MaxRetries, formatTime(j.CreatedAt), formatTimePtr(j.StartedAt), formatTimePtr(j.CompletedAt))
	if err != nil {
		return fmt.Errorf("inserting research job: %w", err)
	}
	return nil
}

// GetJob fetches a job owned by userID
func (d *DB) GetJob(ctx context.Context, userID, id string) (*ResearchJob, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE id = ? AND user_id = ?`, id, userID)
	return scanJob(row)
}

// ListJobs returns the user's jobs, newest first
func (d *DB) ListJobs(ctx context.Context, userID string, limit int) ([]*ResearchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing research jobs: %w", err)
	}
	defer rows.Close()

	var out []*ResearchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateJob writes the mutable job fields (status, progress, results, timestamps).
func (d *DB) UpdateJob(ctx context.Context, j *ResearchJob) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE research_jobs SET status = ?, progress = ?, message = ?, result_data = ?, error_message = ?,
		 started_at = ?, completed_at = ? WHERE id = ?`,
		j.Status, j.Progress, j.Message, j.ResultData, j.ErrorMessage,
		formatTimePtr(j.StartedAt), formatTimePtr(j.CompletedAt), j.ID)
	if err != nil {
		return fmt.Errorf("updating research job: %w", err)
	}
	return checkAffected(res)
}

// FailStaleJobs marks jobs left pending or in progress by a previous process
// as failed, returning the count.
func (d *DB) FailStaleJobs(ctx context.Context, at time.Time) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE research_jobs SET status = 'failed', error_message = 'interrupted by restart', completed_at = ?
		 WHERE status IN ('pending', 'in_progress')`, formatTime(at))
	if err != nil {
		return 0, fmt.Errorf("failing stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(row rowScanner) (*ResearchJob, error) {
	var (
		j                    ResearchJob
		createdAt            string
		startedAt, completed sql.NullString
	)
	err := row.Scan(&j.ID, &j.UserID, &j.JobType, &j.Status, &j.Progress, &j.Message, &j.InputData,
		&j.ResultData, &j.ErrorMessage, &j.RetryCount, &j.MaxRetries, &createdAt, &startedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning research job: %w", err)
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if j.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = parseTimePtr(completed); err != nil {
		return nil, err
	}
	return &j, nil
}
