package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
	"github.com/kirillkom/content-analyzer/internal/core/ports"
)

const (
	DefaultMaxUploadBytes     int64 = 20 << 20
	DefaultMaxConcurrentJobs        = 4
	DefaultExtractionTimeout        = 2 * time.Minute
	DefaultSuggestionTimeout        = 30 * time.Second

	// bookkeepingTimeout bounds store, event and archive calls made after a stage finished.
	bookkeepingTimeout = 5 * time.Second
)

type OrchestratorConfig struct {
	MaxUploadBytes    int64
	MaxConcurrentJobs int
	ExtractionTimeout time.Duration
	// SupportedMimeType rejects uploads before a job is created; nil accepts everything.
	SupportedMimeType func(mimeType string) bool
}

func (c OrchestratorConfig) normalize() OrchestratorConfig {
	out := c
	if out.MaxUploadBytes <= 0 {
		out.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if out.MaxConcurrentJobs <= 0 {
		out.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if out.ExtractionTimeout <= 0 {
		out.ExtractionTimeout = DefaultExtractionTimeout
	}
	return out
}

// Orchestrator accepts uploads and drives each job through extraction and
// suggestion generation on its own goroutine.
type Orchestrator struct {
	store       ports.JobStore
	storage     ports.ObjectStorage
	extractor   ports.TextExtractor
	suggestions *SuggestionStage
	events      ports.EventPublisher
	archive     ports.JobArchive
	observer    JobObserver
	cfg         OrchestratorConfig
	logger      *slog.Logger
	now         func() time.Time

	sem      chan struct{}
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	baseCtx  context.Context
	abort    context.CancelFunc
}

type OrchestratorOption func(*Orchestrator)

func WithEventPublisher(events ports.EventPublisher) OrchestratorOption {
	return func(o *Orchestrator) {
		if events != nil {
			o.events = events
		}
	}
}

func WithJobArchive(archive ports.JobArchive) OrchestratorOption {
	return func(o *Orchestrator) {
		o.archive = archive
	}
}

func WithJobObserver(observer JobObserver) OrchestratorOption {
	return func(o *Orchestrator) {
		if observer != nil {
			o.observer = observer
		}
	}
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewOrchestrator(
	store ports.JobStore,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	suggestions *SuggestionStage,
	cfg OrchestratorConfig,
	opts ...OrchestratorOption,
) *Orchestrator {
	cfg = cfg.normalize()
	baseCtx, abort := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:       store,
		storage:     storage,
		extractor:   extractor,
		suggestions: suggestions,
		events:      nopEvents{},
		observer:    nopObserver{},
		cfg:         cfg,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		sem:         make(chan struct{}, cfg.MaxConcurrentJobs),
		baseCtx:     baseCtx,
		abort:       abort,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetJob reads the live store first and falls back to the archive for swept jobs.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (domain.Job, error) {
	job, err := o.store.Get(ctx, id)
	if err == nil || o.archive == nil || !domain.IsKind(err, domain.ErrJobNotFound) {
		return job, err
	}
	archived, archiveErr := o.archive.FindFinished(ctx, id)
	if archiveErr != nil {
		if !domain.IsKind(archiveErr, domain.ErrJobNotFound) {
			o.logger.Warn("job_archive_lookup_failed", "job_id", id, "error", archiveErr)
		}
		return domain.Job{}, err
	}
	return archived, nil
}

// SweepFinished drops terminal jobs that finished more than ttl ago.
func (o *Orchestrator) SweepFinished(ctx context.Context, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	removed := o.store.Sweep(ctx, o.now().Add(-ttl))
	if removed > 0 {
		o.logger.Info("jobs_swept", "removed", removed, "ttl", ttl.String())
	}
	return removed
}

// Close stops accepting uploads and waits for in-flight jobs. When ctx expires first,
// running stages are cancelled and ctx.Err() is returned.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.abort()
		return nil
	case <-ctx.Done():
		o.abort()
		return ctx.Err()
	}
}

func (o *Orchestrator) run(jobID string) {
	defer o.inflight.Done()
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("job_panic", "job_id", jobID, "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			o.failJob(jobID, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	select {
	case o.sem <- struct{}{}:
	case <-o.baseCtx.Done():
		o.failJob(jobID, "service shutting down")
		return
	}
	defer func() { <-o.sem }()

	o.observer.ObserveJobsInFlight(1)
	defer o.observer.ObserveJobsInFlight(-1)

	o.process(jobID)
}

func (o *Orchestrator) process(jobID string) {
	started := o.now()
	logger := o.logger.With("job_id", jobID)

	job, err := o.update(jobID, func(j *domain.Job) error { return j.StartExtraction(o.now()) })
	if err != nil {
		logger.Error("job_start_failed", "error", err)
		return
	}
	logger.Info("job_processing", "filename", job.Source.Filename, "mime_type", job.Source.MimeType)

	extraction, err := o.extract(job.Source)
	if err != nil {
		logger.Warn("extraction_failed", "error", err)
		o.failJob(jobID, err.Error())
		return
	}

	job, err = o.update(jobID, func(j *domain.Job) error { return j.CompleteExtraction(extraction, o.now()) })
	if err != nil {
		logger.Error("extraction_result_rejected", "error", err)
		return
	}
	o.observer.ObserveExtraction(extraction.Method, utf8.RuneCountInString(job.Result.Text))
	logger.Info("text_ready", "method", extraction.Method, "pages", extraction.Pages, "chars", utf8.RuneCountInString(job.Result.Text))
	o.publish(domain.NewJobEvent(domain.EventTextReady, job))

	suggestions, suggestErr := o.suggest(job.Result.Text)
	if suggestErr != nil {
		logger.Warn("suggestions_failed", "error", suggestErr)
		job, err = o.update(jobID, func(j *domain.Job) error { return j.FailSuggestions(suggestErr.Error(), o.now()) })
	} else {
		o.observer.ObserveSuggestions(len(suggestions))
		job, err = o.update(jobID, func(j *domain.Job) error { return j.CompleteSuggestions(suggestions, o.now()) })
	}
	if err != nil {
		logger.Error("suggestions_result_rejected", "error", err)
		return
	}

	logger.Info("job_done", "suggestions_status", job.Result.SuggestionsStatus, "suggestions", len(job.Result.Suggestions))
	o.finish(job, started)
}

func (o *Orchestrator) extract(source domain.Source) (domain.Extraction, error) {
	ctx, cancel := context.WithTimeout(o.baseCtx, o.cfg.ExtractionTimeout)
	defer cancel()

	start := time.Now()
	extraction, err := o.extractor.Extract(ctx, source)
	if err != nil {
		o.observer.ObserveStage(StageExtraction, OutcomeFailed, time.Since(start))
		return domain.Extraction{}, err
	}
	o.observer.ObserveStage(StageExtraction, OutcomeOK, time.Since(start))
	return extraction, nil
}

func (o *Orchestrator) suggest(text string) ([]string, error) {
	start := time.Now()
	suggestions, err := o.suggestions.Run(o.baseCtx, text)
	if err != nil {
		o.observer.ObserveStage(StageSuggestions, OutcomeFailed, time.Since(start))
		return nil, err
	}
	o.observer.ObserveStage(StageSuggestions, OutcomeOK, time.Since(start))
	return suggestions, nil
}

// failJob aborts a job unless it already reached a terminal state.
func (o *Orchestrator) failJob(jobID, reason string) {
	job, err := o.update(jobID, func(j *domain.Job) error { return j.Abort(reason, o.now()) })
	if err != nil {
		o.logger.Warn("job_fail_skipped", "job_id", jobID, "error", err)
		return
	}
	o.logger.Info("job_aborted", "job_id", jobID, "status", job.Status, "reason", reason)
	o.finish(job, job.CreatedAt)
}

func (o *Orchestrator) finish(job domain.Job, started time.Time) {
	o.observer.ObserveJobFinished(job.Status, o.now().Sub(started))
	if job.Status == domain.StatusError {
		o.publish(domain.NewJobEvent(domain.EventJobError, job))
	} else {
		o.publish(domain.NewJobEvent(domain.EventJobDone, job))
	}

	if o.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()
	if err := o.archive.SaveFinished(ctx, job); err != nil {
		o.logger.Warn("job_archive_failed", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) update(jobID string, mutate func(*domain.Job) error) (domain.Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()
	return o.store.Update(ctx, jobID, mutate)
}

func (o *Orchestrator) publish(event domain.JobEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()
	if err := o.events.PublishJobEvent(ctx, event); err != nil {
		o.logger.Warn("job_event_publish_failed", "job_id", event.JobID, "type", event.Type, "error", err)
	}
}

type nopEvents struct{}

func (nopEvents) PublishJobEvent(context.Context, domain.JobEvent) error { return nil }
