package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

// Submit validates and stores an upload, registers a pending job and schedules its
// processing in the background. Processing is detached from ctx.
func (o *Orchestrator) Submit(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (domain.Job, error) {
	if body == nil {
		return domain.Job{}, domain.WrapError(domain.ErrInvalidInput, "submit upload", errors.New("missing file"))
	}
	if o.cfg.SupportedMimeType != nil && !o.cfg.SupportedMimeType(mimeType) {
		return domain.Job{}, domain.WrapError(domain.ErrUnsupportedMedia, "submit upload", fmt.Errorf("mime type %q", mimeType))
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(body, o.cfg.MaxUploadBytes+1))
	if err != nil {
		return domain.Job{}, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}
	if n > o.cfg.MaxUploadBytes {
		return domain.Job{}, domain.WrapError(domain.ErrFileTooLarge, "submit upload", fmt.Errorf("limit is %d bytes", o.cfg.MaxUploadBytes))
	}
	if n == 0 {
		return domain.Job{}, domain.WrapError(domain.ErrInvalidInput, "submit upload", errors.New("empty file"))
	}

	if o.isClosed() {
		return domain.Job{}, errShuttingDown()
	}

	storageKey := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))
	if err := o.storage.Save(ctx, storageKey, &buf); err != nil {
		return domain.Job{}, fmt.Errorf("save to object storage: %w", err)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return domain.Job{}, errShuttingDown()
	}
	job, err := o.store.Create(ctx, domain.Source{
		StorageKey: storageKey,
		Filename:   filename,
		MimeType:   mimeType,
		Size:       n,
	})
	if err != nil {
		o.mu.Unlock()
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	o.inflight.Add(1)
	o.mu.Unlock()

	o.observer.ObserveJobSubmitted()
	o.logger.Info("job_submitted", "job_id", job.ID, "filename", filename, "mime_type", mimeType, "size", n)
	o.publish(domain.NewJobEvent(domain.EventJobCreated, job))

	go o.run(job.ID)

	return job, nil
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func errShuttingDown() error {
	return domain.WrapError(domain.ErrTemporary, "submit upload", errors.New("service shutting down"))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
