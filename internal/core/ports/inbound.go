package ports

import (
	"context"
	"io"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

// JobSubmitter is the inbound contract for upload orchestration.
type JobSubmitter interface {
	Submit(ctx context.Context, filename, mimeType string, body io.Reader) (domain.Job, error)
}

// JobReader is the inbound read model for job state.
type JobReader interface {
	GetJob(ctx context.Context, id string) (domain.Job, error)
}
