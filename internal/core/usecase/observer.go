package usecase

import (
	"time"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

const (
	StageExtraction  = "extraction"
	StageSuggestions = "suggestions"

	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// JobObserver receives job lifecycle measurements.
type JobObserver interface {
	ObserveJobSubmitted()
	ObserveJobsInFlight(delta int)
	ObserveStage(stage, outcome string, elapsed time.Duration)
	ObserveExtraction(method domain.ExtractionMethod, chars int)
	ObserveSuggestions(count int)
	ObserveJobFinished(status domain.JobStatus, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveJobSubmitted()                                {}
func (nopObserver) ObserveJobsInFlight(int)                             {}
func (nopObserver) ObserveStage(string, string, time.Duration)          {}
func (nopObserver) ObserveExtraction(domain.ExtractionMethod, int)      {}
func (nopObserver) ObserveSuggestions(int)                              {}
func (nopObserver) ObserveJobFinished(domain.JobStatus, time.Duration) {}
