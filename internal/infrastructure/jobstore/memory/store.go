package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

// Store is an in-memory job registry. Snapshots returned from it are deep copies.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func New() *Store {
	return &Store{
		jobs: make(map[string]*domain.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, source domain.Source) (domain.Job, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	for _, taken := s.jobs[id]; taken; _, taken = s.jobs[id] {
		id = uuid.NewString()
	}

	job := &domain.Job{
		ID:        id,
		Source:    source,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[id] = job
	return job.Clone(), nil
}

func (s *Store) Get(_ context.Context, id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, notFound("get job", id)
	}
	return job.Clone(), nil
}

func (s *Store) Update(_ context.Context, id string, mutate func(*domain.Job) error) (domain.Job, error) {
	if mutate == nil {
		return domain.Job{}, domain.WrapError(domain.ErrInvalidInput, "update job", fmt.Errorf("nil mutation"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, notFound("update job", id)
	}

	next := current.Clone()
	if err := mutate(&next); err != nil {
		return current.Clone(), err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt

	s.jobs[id] = &next
	return next.Clone(), nil
}

// Sweep drops finished jobs last updated before the cutoff and reports how many were removed.
func (s *Store) Sweep(_ context.Context, finishedBefore time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Finished() && job.UpdatedAt.Before(finishedBefore) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func notFound(operation, id string) error {
	return domain.WrapError(domain.ErrJobNotFound, operation, fmt.Errorf("id=%s", id))
}
