package domain

import (
	"fmt"
	"slices"
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
)

func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

type SuggestionsStatus string

const (
	SuggestionsPending SuggestionsStatus = "pending"
	SuggestionsDone    SuggestionsStatus = "done"
	SuggestionsFailed  SuggestionsStatus = "failed"
)

func (s SuggestionsStatus) Terminal() bool {
	return s == SuggestionsDone || s == SuggestionsFailed
}

type ExtractionMethod string

const (
	MethodTextLayer ExtractionMethod = "text-layer"
	MethodPDFOCR    ExtractionMethod = "pdf-ocr"
	MethodImageOCR  ExtractionMethod = "image-ocr"
)

// Source points at an uploaded file in object storage.
type Source struct {
	StorageKey string `json:"storage_key"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
}

type Extraction struct {
	Text   string
	Method ExtractionMethod
	Pages  int
}

type Result struct {
	Text              string            `json:"text"`
	ExtractionMethod  ExtractionMethod  `json:"extraction_method,omitempty"`
	SuggestionsStatus SuggestionsStatus `json:"suggestions_status"`
	Suggestions       []string          `json:"suggestions,omitempty"`
	SuggestionsError  string            `json:"suggestions_error,omitempty"`
}

type Job struct {
	ID        string    `json:"id"`
	Source    Source    `json:"source"`
	Status    JobStatus `json:"status"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out as a snapshot.
func (j Job) Clone() Job {
	out := j
	if j.Result != nil {
		res := *j.Result
		res.Suggestions = slices.Clone(j.Result.Suggestions)
		out.Result = &res
	}
	return out
}

// Finished reports whether the job reached a state it will never leave.
func (j Job) Finished() bool {
	return j.Status.Terminal()
}

func (j *Job) StartExtraction(now time.Time) error {
	if j.Status != StatusPending {
		return j.transitionError("start extraction")
	}
	j.Status = StatusProcessing
	j.UpdatedAt = now
	return nil
}

func (j *Job) CompleteExtraction(extraction Extraction, now time.Time) error {
	if j.Status != StatusProcessing || j.Result != nil {
		return j.transitionError("complete extraction")
	}
	j.Result = &Result{
		Text:              extraction.Text,
		ExtractionMethod:  extraction.Method,
		SuggestionsStatus: SuggestionsPending,
	}
	j.UpdatedAt = now
	return nil
}

func (j *Job) FailExtraction(reason string, now time.Time) error {
	if j.Status != StatusProcessing || j.Result != nil {
		return j.transitionError("fail extraction")
	}
	j.Status = StatusError
	j.Error = reason
	j.UpdatedAt = now
	return nil
}

// CompleteSuggestions also closes the job: both stages are terminal afterwards.
func (j *Job) CompleteSuggestions(suggestions []string, now time.Time) error {
	if err := j.checkSuggestionsPending("complete suggestions"); err != nil {
		return err
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	j.Result.SuggestionsStatus = SuggestionsDone
	j.Result.Suggestions = append([]string{}, suggestions...)
	j.Status = StatusDone
	j.UpdatedAt = now
	return nil
}

func (j *Job) FailSuggestions(reason string, now time.Time) error {
	if err := j.checkSuggestionsPending("fail suggestions"); err != nil {
		return err
	}
	j.Result.SuggestionsStatus = SuggestionsFailed
	j.Result.Suggestions = nil
	j.Result.SuggestionsError = reason
	j.Status = StatusDone
	j.UpdatedAt = now
	return nil
}

// Abort ends a job that cannot continue normally. A job that already has text keeps it
// and only its suggestions fail; otherwise the job moves to error.
func (j *Job) Abort(reason string, now time.Time) error {
	if j.Status.Terminal() {
		return j.transitionError("abort")
	}
	if j.Result != nil {
		return j.FailSuggestions(reason, now)
	}
	j.Status = StatusError
	j.Error = reason
	j.UpdatedAt = now
	return nil
}

func (j *Job) checkSuggestionsPending(op string) error {
	if j.Status != StatusProcessing || j.Result == nil || j.Result.SuggestionsStatus != SuggestionsPending {
		return j.transitionError(op)
	}
	return nil
}

func (j *Job) transitionError(op string) error {
	state := string(j.Status)
	if j.Result != nil {
		state += "/" + string(j.Result.SuggestionsStatus)
	}
	return WrapError(ErrInvalidTransition, op, fmt.Errorf("job %s in state %s", j.ID, state))
}
