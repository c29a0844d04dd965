package domain

import "time"

type JobEventType string

const (
	EventJobCreated JobEventType = "created"
	EventTextReady  JobEventType = "text_ready"
	EventJobDone    JobEventType = "done"
	EventJobError   JobEventType = "error"
)

type JobEvent struct {
	Type              JobEventType      `json:"type"`
	JobID             string            `json:"job_id"`
	Status            JobStatus         `json:"status"`
	SuggestionsStatus SuggestionsStatus `json:"suggestions_status,omitempty"`
	Error             string            `json:"error,omitempty"`
	At                time.Time         `json:"at"`
}

func NewJobEvent(eventType JobEventType, job Job) JobEvent {
	event := JobEvent{
		Type:   eventType,
		JobID:  job.ID,
		Status: job.Status,
		Error:  job.Error,
		At:     job.UpdatedAt,
	}
	if job.Result != nil {
		event.SuggestionsStatus = job.Result.SuggestionsStatus
	}
	if event.At.IsZero() {
		event.At = job.CreatedAt
	}
	return event
}
