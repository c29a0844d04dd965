package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

// JobStore is the single source of truth for job state.
type JobStore interface {
	Create(ctx context.Context, source domain.Source) (domain.Job, error)
	Get(ctx context.Context, id string) (domain.Job, error)
	// Update applies mutate atomically; nothing is written when mutate fails.
	Update(ctx context.Context, id string, mutate func(*domain.Job) error) (domain.Job, error)
	Sweep(ctx context.Context, finishedBefore time.Time) int
}

// ObjectStorage stores uploaded source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor turns a stored file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, source domain.Source) (domain.Extraction, error)
}

// SuggestionGenerator asks a generative model for improvement suggestions.
type SuggestionGenerator interface {
	GenerateSuggestions(ctx context.Context, text string, count int) ([]string, error)
}

// EventPublisher announces job lifecycle transitions to external consumers.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, event domain.JobEvent) error
}

// JobArchive keeps finished jobs after they leave the job store.
type JobArchive interface {
	SaveFinished(ctx context.Context, job domain.Job) error
	FindFinished(ctx context.Context, id string) (domain.Job, error)
}
