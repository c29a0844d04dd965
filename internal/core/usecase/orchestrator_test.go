package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

type jobStoreFake struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]domain.Job
}

func newJobStoreFake() *jobStoreFake {
	return &jobStoreFake{jobs: map[string]domain.Job{}}
}

func (f *jobStoreFake) Create(_ context.Context, source domain.Source) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	now := time.Now().UTC()
	job := domain.Job{
		ID:        "job-" + string(rune('a'+f.seq-1)),
		Source:    source,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.jobs[job.ID] = job
	return job.Clone(), nil
}

func (f *jobStoreFake) Get(_ context.Context, id string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, domain.WrapError(domain.ErrJobNotFound, "get job", errors.New(id))
	}
	return job.Clone(), nil
}

func (f *jobStoreFake) Update(_ context.Context, id string, mutate func(*domain.Job) error) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, domain.WrapError(domain.ErrJobNotFound, "update job", errors.New(id))
	}
	next := job.Clone()
	if err := mutate(&next); err != nil {
		return job.Clone(), err
	}
	f.jobs[id] = next
	return next.Clone(), nil
}

func (f *jobStoreFake) Sweep(_ context.Context, before time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for id, job := range f.jobs {
		if job.Finished() && job.UpdatedAt.Before(before) {
			delete(f.jobs, id)
			removed++
		}
	}
	return removed
}

func (f *jobStoreFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type extractorFake struct {
	mu      sync.Mutex
	byName  map[string]domain.Extraction
	errs    map[string]error
	panics  map[string]bool
	release chan struct{}
	started chan string
	calls   int
}

func (f *extractorFake) Extract(ctx context.Context, source domain.Source) (domain.Extraction, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- source.Filename
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "extract", ctx.Err())
		}
	}
	if f.panics[source.Filename] {
		panic("decoder exploded")
	}
	if err := f.errs[source.Filename]; err != nil {
		return domain.Extraction{}, err
	}
	if out, ok := f.byName[source.Filename]; ok {
		return out, nil
	}
	return domain.Extraction{Text: "Hello World", Method: domain.MethodTextLayer, Pages: 1}, nil
}

type eventsFake struct {
	mu     sync.Mutex
	events []domain.JobEvent
}

func (f *eventsFake) PublishJobEvent(_ context.Context, event domain.JobEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *eventsFake) types(jobID string) []domain.JobEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.JobEventType
	for _, event := range f.events {
		if event.JobID == jobID {
			out = append(out, event.Type)
		}
	}
	return out
}

type archiveFake struct {
	mu   sync.Mutex
	jobs []domain.Job
}

func (f *archiveFake) SaveFinished(_ context.Context, job domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *archiveFake) FindFinished(_ context.Context, id string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ID == id {
			return job.Clone(), nil
		}
	}
	return domain.Job{}, domain.WrapError(domain.ErrJobNotFound, "find archived job", errors.New(id))
}

func (f *archiveFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type orchestratorHarness struct {
	store     *jobStoreFake
	storage   *storageFake
	extractor *extractorFake
	generator *generatorFake
	events    *eventsFake
	archive   *archiveFake
	orch      *Orchestrator
}

func newHarness(t *testing.T, cfg OrchestratorConfig, suggestTimeout time.Duration) *orchestratorHarness {
	t.Helper()
	h := &orchestratorHarness{
		store:     newJobStoreFake(),
		storage:   &storageFake{},
		extractor: &extractorFake{},
		generator: &generatorFake{suggestions: []string{"Add a CTA", "Use #hashtags"}},
		events:    &eventsFake{},
		archive:   &archiveFake{},
	}
	if suggestTimeout <= 0 {
		suggestTimeout = time.Second
	}
	h.orch = NewOrchestrator(
		h.store,
		h.storage,
		h.extractor,
		NewSuggestionStage(h.generator, 5, suggestTimeout),
		cfg,
		WithEventPublisher(h.events),
		WithJobArchive(h.archive),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.orch.Close(ctx)
	})
	return h
}

func (h *orchestratorHarness) submit(t *testing.T, filename string) domain.Job {
	t.Helper()
	job, err := h.orch.Submit(context.Background(), filename, "application/pdf", strings.NewReader("%PDF-1.4 data"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return job
}

func waitForJob(t *testing.T, orch *Orchestrator, id string, cond func(domain.Job) bool) domain.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := orch.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if cond(job) {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, last state: %+v", job)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func isFinished(job domain.Job) bool { return job.Finished() }

func TestSubmitReturnsPendingJobAndCompletesInBackground(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)

	job := h.submit(t, "hello.pdf")
	if job.Status != domain.StatusPending || job.Result != nil {
		t.Fatalf("expected pending job without result, got %+v", job)
	}
	if job.Source.StorageKey == "" || !strings.HasSuffix(job.Source.StorageKey, "_hello.pdf") {
		t.Fatalf("unexpected storage key %q", job.Source.StorageKey)
	}

	done := waitForJob(t, h.orch, job.ID, isFinished)
	if done.Status != domain.StatusDone {
		t.Fatalf("expected done, got %s (%s)", done.Status, done.Error)
	}
	if done.Result.Text != "Hello World" || done.Result.ExtractionMethod != domain.MethodTextLayer {
		t.Fatalf("unexpected result %+v", done.Result)
	}
	if done.Result.SuggestionsStatus != domain.SuggestionsDone || len(done.Result.Suggestions) != 2 {
		t.Fatalf("unexpected suggestions %+v", done.Result)
	}

	want := []domain.JobEventType{domain.EventJobCreated, domain.EventTextReady, domain.EventJobDone}
	waitUntil(t, func() bool { return len(h.events.types(job.ID)) == len(want) })
	for i, got := range h.events.types(job.ID) {
		if got != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got, want[i])
		}
	}
	waitUntil(t, func() bool { return h.archive.count() == 1 })
}

func TestFinishedJobReadsAreIdempotent(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)
	job := h.submit(t, "hello.pdf")
	first := waitForJob(t, h.orch, job.ID, isFinished)

	for i := 0; i < 12; i++ {
		got, err := h.orch.GetJob(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("read %d differs:\n%+v\nwant:\n%+v", i, got.Result, first.Result)
		}
		got.Result.Suggestions[0] = "mutated"
	}
	if first.Result.Suggestions[0] == "mutated" {
		t.Fatalf("snapshots must not share suggestions")
	}
}

func TestResultVisibleBeforeSuggestionsComplete(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 5*time.Second)
	h.generator.block = true

	job := h.submit(t, "hello.pdf")
	partial := waitForJob(t, h.orch, job.ID, func(j domain.Job) bool { return j.Result != nil })
	if partial.Status != domain.StatusProcessing {
		t.Fatalf("expected processing while suggestions pending, got %s", partial.Status)
	}
	if partial.Result.SuggestionsStatus != domain.SuggestionsPending || partial.Result.Suggestions != nil {
		t.Fatalf("expected pending suggestions, got %+v", partial.Result)
	}
	if partial.Result.Text != "Hello World" {
		t.Fatalf("unexpected text %q", partial.Result.Text)
	}
}

func TestExtractionFailureMarksJobError(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)
	h.extractor.errs = map[string]error{
		"broken.pdf": domain.WrapError(domain.ErrExtraction, "extract pdf", errors.New("corrupt xref")),
	}

	job := h.submit(t, "broken.pdf")
	failed := waitForJob(t, h.orch, job.ID, isFinished)

	if failed.Status != domain.StatusError || failed.Result != nil {
		t.Fatalf("expected error without result, got %+v", failed)
	}
	if !strings.Contains(failed.Error, "corrupt xref") {
		t.Fatalf("expected reason in error, got %q", failed.Error)
	}
	if h.generator.callCount() != 0 {
		t.Fatalf("suggestions must not run after extraction failure")
	}
	waitUntil(t, func() bool {
		types := h.events.types(job.ID)
		return len(types) == 2 && types[1] == domain.EventJobError
	})
}

func TestSuggestionFailureStillCompletesJob(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)
	h.generator.err = errors.New("403 API key not valid")

	job := h.submit(t, "hello.pdf")
	done := waitForJob(t, h.orch, job.ID, isFinished)

	if done.Status != domain.StatusDone {
		t.Fatalf("expected done, got %s", done.Status)
	}
	if done.Result.Text != "Hello World" || done.Result.SuggestionsStatus != domain.SuggestionsFailed {
		t.Fatalf("unexpected result %+v", done.Result)
	}
	if done.Result.Suggestions != nil {
		t.Fatalf("expected no suggestions on failure, got %v", done.Result.Suggestions)
	}
}

func TestSuggestionTimeoutStillCompletesJob(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 20*time.Millisecond)
	h.generator.block = true

	job := h.submit(t, "hello.pdf")
	done := waitForJob(t, h.orch, job.ID, isFinished)

	if done.Status != domain.StatusDone || done.Result.SuggestionsStatus != domain.SuggestionsFailed {
		t.Fatalf("expected done with failed suggestions, got %+v / %+v", done, done.Result)
	}
	if done.Result.Text != "Hello World" {
		t.Fatalf("text must survive suggestion timeout, got %q", done.Result.Text)
	}
}

func TestEmptyTextSkipsSuggestionProvider(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)
	h.extractor.byName = map[string]domain.Extraction{"blank.png": {Text: "", Method: domain.MethodImageOCR, Pages: 1}}

	job := h.submit(t, "blank.png")
	done := waitForJob(t, h.orch, job.ID, isFinished)

	if done.Status != domain.StatusDone || done.Result.Text != "" {
		t.Fatalf("unexpected job %+v", done)
	}
	if done.Result.SuggestionsStatus != domain.SuggestionsDone || done.Result.Suggestions == nil || len(done.Result.Suggestions) != 0 {
		t.Fatalf("expected done with empty suggestions, got %+v", done.Result)
	}
	if h.generator.callCount() != 0 {
		t.Fatalf("expected no provider call for empty text")
	}
}

func TestPanicInOneJobDoesNotAffectOthers(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)
	h.extractor.panics = map[string]bool{"bomb.pdf": true}

	bad := h.submit(t, "bomb.pdf")
	good := h.submit(t, "fine.pdf")

	failed := waitForJob(t, h.orch, bad.ID, isFinished)
	if failed.Status != domain.StatusError || !strings.Contains(failed.Error, "decoder exploded") {
		t.Fatalf("expected panic recorded as job error, got %+v", failed)
	}
	ok := waitForJob(t, h.orch, good.ID, isFinished)
	if ok.Status != domain.StatusDone {
		t.Fatalf("expected other job done, got %s", ok.Status)
	}
}

func TestSubmitRejectsInvalidUploads(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{
		MaxUploadBytes:    8,
		SupportedMimeType: func(mt string) bool { return mt == "application/pdf" },
	}, 0)

	cases := []struct {
		name     string
		mimeType string
		body     io.Reader
		kind     error
	}{
		{"missing body", "application/pdf", nil, domain.ErrInvalidInput},
		{"empty body", "application/pdf", strings.NewReader(""), domain.ErrInvalidInput},
		{"unsupported", "text/plain", strings.NewReader("hi"), domain.ErrUnsupportedMedia},
		{"too large", "application/pdf", strings.NewReader("123456789"), domain.ErrFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.orch.Submit(context.Background(), "f.pdf", tc.mimeType, tc.body)
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if !domain.IsUploadError(err) {
				t.Fatalf("expected upload error, got %v", err)
			}
		})
	}
	if h.store.count() != 0 {
		t.Fatalf("no job may be created for rejected uploads, got %d", h.store.count())
	}
}

func TestSubmitAtLimitIsAccepted(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MaxUploadBytes: 8}, 0)

	if _, err := h.orch.Submit(context.Background(), "f.pdf", "application/pdf", strings.NewReader("12345678")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestConcurrencyLimitQueuesJobsWithoutBlockingSubmit(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MaxConcurrentJobs: 1}, 0)
	h.extractor.release = make(chan struct{})
	h.extractor.started = make(chan string, 4)

	first := h.submit(t, "one.pdf")
	<-h.extractor.started
	second := h.submit(t, "two.pdf")

	time.Sleep(20 * time.Millisecond)
	queued, _ := h.orch.GetJob(context.Background(), second.ID)
	if queued.Status != domain.StatusPending {
		t.Fatalf("expected second job queued as pending, got %s", queued.Status)
	}

	close(h.extractor.release)
	waitForJob(t, h.orch, first.ID, isFinished)
	waitForJob(t, h.orch, second.ID, isFinished)
}

func TestCloseWaitsForInFlightJobsAndRejectsNewUploads(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)
	h.extractor.release = make(chan struct{})
	h.extractor.started = make(chan string, 1)

	job := h.submit(t, "slow.pdf")
	<-h.extractor.started

	closed := make(chan error, 1)
	go func() { closed <- h.orch.Close(context.Background()) }()

	select {
	case err := <-closed:
		t.Fatalf("Close returned before job finished: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	_, err := h.orch.Submit(context.Background(), "late.pdf", "application/pdf", strings.NewReader("data"))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary after close, got %v", err)
	}

	close(h.extractor.release)
	if err := <-closed; err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	done, _ := h.orch.GetJob(context.Background(), job.ID)
	if done.Status != domain.StatusDone {
		t.Fatalf("expected in-flight job to finish, got %s", done.Status)
	}
}

func TestCloseDeadlineCancelsRunningStages(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)
	h.extractor.release = make(chan struct{})
	h.extractor.started = make(chan string, 1)

	job := h.submit(t, "stuck.pdf")
	<-h.extractor.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := h.orch.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	failed := waitForJob(t, h.orch, job.ID, isFinished)
	if failed.Status != domain.StatusError {
		t.Fatalf("expected cancelled job to end in error, got %s", failed.Status)
	}
}

func TestSweepFinishedRemovesOldJobs(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)
	job := h.submit(t, "hello.pdf")
	waitForJob(t, h.orch, job.ID, isFinished)
	waitUntil(t, func() bool { return h.archive.count() == 1 })

	if removed := h.orch.SweepFinished(context.Background(), 0); removed != 0 {
		t.Fatalf("zero ttl must disable sweeping, removed %d", removed)
	}
	h.orch.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	if removed := h.orch.SweepFinished(context.Background(), time.Minute); removed != 1 {
		t.Fatalf("expected 1 job swept, got %d", removed)
	}
	if _, err := h.store.Get(context.Background(), job.ID); !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected swept job to leave the store, got %v", err)
	}
	archived, err := h.orch.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob() after sweep error = %v", err)
	}
	if archived.Status != domain.StatusDone {
		t.Fatalf("expected archived job to be done, got %s", archived.Status)
	}
}

func TestGetJobUnknownIDIsNotFound(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{}, 0)

	if _, err := h.orch.GetJob(context.Background(), "nope"); !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"My Post.pdf":          "My_Post.pdf",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\scan.png`: "scan.png",
		"":                     "document.bin",
		"отчёт.pdf":            "_____.pdf",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
