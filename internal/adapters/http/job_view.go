package httpadapter

import (
	"time"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

// JobView is the polling representation of a job.
type JobView struct {
	JobID     string      `json:"jobId"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Filename  string      `json:"filename,omitempty"`
	Error     string      `json:"error,omitempty"`
	Result    *ResultView `json:"result,omitempty"`
}

type ResultView struct {
	Text              string `json:"text"`
	ExtractionMethod  string `json:"extractionMethod,omitempty"`
	SuggestionsStatus string `json:"suggestionsStatus"`
	// Suggestions is present, possibly empty, only once suggestions are done.
	Suggestions      *[]string `json:"suggestions,omitempty"`
	SuggestionsError string    `json:"suggestionsError,omitempty"`
}

type uploadResponse struct {
	JobID string `json:"jobId"`
}

func newJobView(job domain.Job) JobView {
	view := JobView{
		JobID:     job.ID,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
		Filename:  job.Source.Filename,
		Error:     job.Error,
	}
	if res := job.Result; res != nil {
		rv := &ResultView{
			Text:              res.Text,
			ExtractionMethod:  string(res.ExtractionMethod),
			SuggestionsStatus: string(res.SuggestionsStatus),
			SuggestionsError:  res.SuggestionsError,
		}
		if res.SuggestionsStatus == domain.SuggestionsDone {
			suggestions := append([]string{}, res.Suggestions...)
			rv.Suggestions = &suggestions
		}
		view.Result = rv
	}
	return view
}
