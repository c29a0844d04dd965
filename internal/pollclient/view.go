// Package pollclient uploads documents to the analyzer and follows their jobs until
// both text extraction and suggestion generation have settled.
package pollclient

import "time"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"

	SuggestionsPending = "pending"
	SuggestionsDone    = "done"
	SuggestionsFailed  = "failed"
)

// JobView mirrors the body of GET /job/{jobId}.
type JobView struct {
	JobID     string    `json:"jobId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Filename  string    `json:"filename,omitempty"`
	Error     string    `json:"error,omitempty"`
	Result    *Result   `json:"result,omitempty"`
}

type Result struct {
	Text              string   `json:"text"`
	ExtractionMethod  string   `json:"extractionMethod,omitempty"`
	SuggestionsStatus string   `json:"suggestionsStatus"`
	Suggestions       []string `json:"suggestions,omitempty"`
	SuggestionsError  string   `json:"suggestionsError,omitempty"`
}

// Settled reports whether polling can stop: the job failed, or it left the active
// states and its suggestions are terminal.
func (v JobView) Settled() bool {
	if v.Status == StatusError {
		return true
	}
	if v.Status == StatusPending || v.Status == StatusProcessing {
		return false
	}
	return v.Result != nil && suggestionsTerminal(v.Result.SuggestionsStatus)
}

func suggestionsTerminal(status string) bool {
	return status == SuggestionsDone || status == SuggestionsFailed
}
