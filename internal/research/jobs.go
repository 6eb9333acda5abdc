package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"researchtools/internal/store"
)

// Job statuses
const (
	JobPending    = "pending"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)

// Job types
const (
	JobURLBatch    = "url_batch"
	JobScrape      = "scrape"
	JobSocialMedia = "social_media"
	JobDocument    = "document"
)

// JobTypes lists the accepted job types
var JobTypes = []string{JobURLBatch, JobScrape, JobSocialMedia, JobDocument}

const (
	maxBatchItems     = 100
	defaultMaxRetries = 3
)

// ErrJobFinished is returned when cancelling a job that already ended
var ErrJobFinished = errors.New("job already finished")

// JobRepository persists research jobs. *store.DB satisfies it.
type JobRepository interface {
	CreateJob(ctx context.Context, j *store.ResearchJob) error
	GetJob(ctx context.Context, userID, id string) (*store.ResearchJob, error)
	ListJobs(ctx context.Context, userID string, limit int) ([]*store.ResearchJob, error)
	UpdateJob(ctx context.Context, j *store.ResearchJob) error
}

// Notifier delivers job progress to a user's live connections
type Notifier interface {
	SendToUser(userID, msgType string, data interface{})
}

// Notifiers fans one notification out to several notifiers
type Notifiers []Notifier

// SendToUser implements Notifier
func (ns Notifiers) SendToUser(userID, msgType string, data interface{}) {
	for _, n := range ns {
		n.SendToUser(userID, msgType, data)
	}
}

// JobRequest is the payload of POST /jobs
type JobRequest struct {
	JobType string          `json:"job_type"`
	Input   json.RawMessage `json:"input_data"`
}

type urlBatchInput struct {
	URLs    []string `json:"urls"`
	Archive bool     `json:"archive"`
}

type scrapeInput struct {
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages"`
}

type documentBatchInput struct {
	Documents []DocumentInput `json:"documents"`
}

// JobView is the API form of a job with its input and result documents inlined
type JobView struct {
	*store.ResearchJob
	Input  json.RawMessage `json:"input_data,omitempty"`
	Result json.RawMessage `json:"result_data,omitempty"`
}

// ViewJob wraps j for JSON output
func ViewJob(j *store.ResearchJob) *JobView {
	v := &JobView{ResearchJob: j}
	if j.InputData != "" {
		v.Input = json.RawMessage(j.InputData)
	}
	if j.ResultData != "" {
		v.Result = json.RawMessage(j.ResultData)
	}
	return v
}

// JobResult is stored as a finished job's result data
type JobResult struct {
	Results  []any         `json:"results"`
	Failures []ItemFailure `json:"failures"`
}

type jobItem struct {
	label string
	run   func(ctx context.Context) (any, error)
}

// JobManager runs research jobs in background goroutines. Items within a job
// run sequentially with a fixed delay between them.
type JobManager struct {
	tools     *Service
	repo      JobRepository
	notifier  Notifier
	itemDelay time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobManager creates a job manager. notifier may be nil.
func NewJobManager(tools *Service, repo JobRepository, notifier Notifier, itemDelay time.Duration, logger *zap.Logger) *JobManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		tools:     tools,
		repo:      repo,
		notifier:  notifier,
		itemDelay: itemDelay,
		logger:    logger.Named("jobs"),
		running:   make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit validates the request, stores a pending job and starts it.
func (m *JobManager) Submit(ctx context.Context, userID string, req JobRequest) (*store.ResearchJob, error) {
	jobType := strings.ToLower(strings.TrimSpace(req.JobType))
	items, err := m.plan(userID, jobType, req.Input)
	if err != nil {
		return nil, err
	}

	job := &store.ResearchJob{
		ID:         uuid.NewString(),
		UserID:     userID,
		JobType:    jobType,
		Status:     JobPending,
		Message:    fmt.Sprintf("queued %d item(s)", len(items)),
		InputData:  string(req.Input),
		MaxRetries: defaultMaxRetries,
		CreatedAt:  time.Now(),
	}
	if err := m.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	m.running[job.ID] = cancel
	m.mu.Unlock()

	snapshot := *job
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.forget(snapshot.ID)
		m.run(jobCtx, &snapshot, items)
	}()

	m.logger.Info("job submitted", zap.String("job_id", job.ID), zap.String("job_type", jobType),
		zap.Int("items", len(items)))
	return job, nil
}

func (m *JobManager) plan(userID, jobType string, raw json.RawMessage) ([]jobItem, error) {
	if len(raw) == 0 {
		return nil, badInput("input_data", "is required")
	}
	switch jobType {
	case JobURLBatch:
		var in urlBatchInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, badInput("input_data", "expected {\"urls\": [...]}")
		}
		if err := checkBatch(in.URLs); err != nil {
			return nil, err
		}
		items := make([]jobItem, len(in.URLs))
		for i, u := range in.URLs {
			u := u
			items[i] = jobItem{label: u, run: func(ctx context.Context) (any, error) {
				p, err := m.tools.ProcessURL(ctx, userID, u, in.Archive)
				if err == nil && p.Error != "" {
					return nil, errors.New(p.Error)
				}
				return p, err
			}}
		}
		return items, nil

	case JobScrape:
		var in scrapeInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, badInput("input_data", "expected {\"url\": ..., \"max_pages\": n}")
		}
		if _, err := ParseTargetURL(in.URL); err != nil {
			return nil, err
		}
		return []jobItem{{label: in.URL, run: func(ctx context.Context) (any, error) {
			return m.tools.Scrape(ctx, in.URL, in.MaxPages)
		}}}, nil

	case JobSocialMedia:
		var in urlBatchInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, badInput("input_data", "expected {\"urls\": [...]}")
		}
		if err := checkBatch(in.URLs); err != nil {
			return nil, err
		}
		items := make([]jobItem, len(in.URLs))
		for i, u := range in.URLs {
			u := u
			items[i] = jobItem{label: u, run: func(context.Context) (any, error) {
				return SimulateSocialDownload(u)
			}}
		}
		return items, nil

	case JobDocument:
		var in documentBatchInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, badInput("input_data", "expected {\"documents\": [...]}")
		}
		if len(in.Documents) == 0 || len(in.Documents) > maxBatchItems {
			return nil, badInput("documents", "must contain 1 to %d documents", maxBatchItems)
		}
		items := make([]jobItem, len(in.Documents))
		for i, d := range in.Documents {
			d := d
			label := d.Filename
			if label == "" {
				label = fmt.Sprintf("document %d", i+1)
			}
			items[i] = jobItem{label: label, run: func(ctx context.Context) (any, error) {
				return m.tools.ProcessDocument(ctx, d)
			}}
		}
		return items, nil
	}
	return nil, badInput("job_type", "must be one of %s", strings.Join(JobTypes, ", "))
}

func checkBatch(urls []string) error {
	if len(urls) == 0 || len(urls) > maxBatchItems {
		return badInput("urls", "must contain 1 to %d URLs", maxBatchItems)
	}
	for _, u := range urls {
		if _, err := ParseTargetURL(u); err != nil {
			return badInput("urls", "%q is not an absolute http or https URL", u)
		}
	}
	return nil
}

func (m *JobManager) run(ctx context.Context, job *store.ResearchJob, items []jobItem) {
	// Status writes must land even after the job context is cancelled.
	writeCtx := context.WithoutCancel(ctx)

	started := time.Now()
	job.Status = JobInProgress
	job.StartedAt = &started
	job.Message = "started"
	m.save(writeCtx, job)

	result := JobResult{Results: []any{}, Failures: []ItemFailure{}}
	for i, item := range items {
		if i > 0 && !sleep(ctx, m.itemDelay) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		out, err := item.run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			m.logger.Warn("job item failed", zap.String("job_id", job.ID), zap.String("item", item.label), zap.Error(err))
			result.Failures = append(result.Failures, ItemFailure{Item: item.label, Error: err.Error()})
		} else {
			result.Results = append(result.Results, out)
		}

		job.Progress = float64(i+1) / float64(len(items)) * 100
		job.Message = fmt.Sprintf("processed %d of %d", i+1, len(items))
		m.save(writeCtx, job)
	}

	done := time.Now()
	job.CompletedAt = &done
	if body, err := json.Marshal(result); err == nil {
		job.ResultData = string(body)
	}

	switch {
	case m.ctx.Err() != nil:
		job.Status = JobFailed
		job.ErrorMessage = fmt.Sprintf("interrupted by shutdown after %d of %d", len(result.Results)+len(result.Failures), len(items))
		job.Message = job.ErrorMessage
	case ctx.Err() != nil:
		job.Status = JobCancelled
		job.Message = fmt.Sprintf("cancelled after %d of %d", len(result.Results)+len(result.Failures), len(items))
	case len(result.Results) == 0 && len(result.Failures) > 0:
		job.Status = JobFailed
		job.ErrorMessage = fmt.Sprintf("all %d item(s) failed", len(result.Failures))
		job.Message = job.ErrorMessage
	default:
		job.Status = JobCompleted
		job.Progress = 100
		job.Message = fmt.Sprintf("completed with %d failure(s)", len(result.Failures))
	}
	m.save(writeCtx, job)
	m.logger.Info("job finished", zap.String("job_id", job.ID), zap.String("status", job.Status),
		zap.Duration("duration", done.Sub(started)))
}

func (m *JobManager) save(ctx context.Context, job *store.ResearchJob) {
	if err := m.repo.UpdateJob(ctx, job); err != nil {
		m.logger.Error("updating job", zap.String("job_id", job.ID), zap.Error(err))
	}
	if m.notifier != nil {
		m.notifier.SendToUser(job.UserID, "job_progress", map[string]interface{}{
			"job_id":   job.ID,
			"job_type": job.JobType,
			"status":   job.Status,
			"progress": job.Progress,
			"message":  job.Message,
		})
	}
}

func (m *JobManager) forget(id string) {
	m.mu.Lock()
	if cancel, ok := m.running[id]; ok {
		cancel()
		delete(m.running, id)
	}
	m.mu.Unlock()
}

// Get returns one job
func (m *JobManager) Get(ctx context.Context, userID, id string) (*store.ResearchJob, error) {
	return m.repo.GetJob(ctx, userID, id)
}

// List returns the user's jobs, newest first
func (m *JobManager) List(ctx context.Context, userID string, limit int) ([]*store.ResearchJob, error) {
	return m.repo.ListJobs(ctx, userID, limit)
}

// Cancel stops a pending or running job. The job goroutine records the
// cancelled status; the returned job reflects it already.
func (m *JobManager) Cancel(ctx context.Context, userID, id string) (*store.ResearchJob, error) {
	job, err := m.repo.GetJob(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if job.Status != JobPending && job.Status != JobInProgress {
		return nil, fmt.Errorf("%w: status is %s", ErrJobFinished, job.Status)
	}

	m.mu.Lock()
	cancel, ok := m.running[id]
	m.mu.Unlock()
	if ok {
		cancel()
	} else {
		// Not owned by this process, e.g. left over from a restart.
		now := time.Now()
		job.CompletedAt = &now
		job.Status = JobCancelled
		job.Message = "cancelled"
		if err := m.repo.UpdateJob(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
	job.Status = JobCancelled
	return job, nil
}

// Active returns the number of jobs currently running
func (m *JobManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Wait blocks until every running job has finished
func (m *JobManager) Wait() {
	m.wg.Wait()
}

// Stop interrupts every running job and waits for them to record it as failed
func (m *JobManager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// sleep waits d or until ctx ends, reporting whether the full delay elapsed
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
