package pollclient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const DefaultPollInterval = 1200 * time.Millisecond

// JobFetcher reads the current state of a job.
type JobFetcher interface {
	Job(ctx context.Context, id string) (JobView, error)
}

// Watcher polls one job with at most one request in flight.
type Watcher struct {
	Fetcher  JobFetcher
	Interval time.Duration
	// OnSignal fires once per transition, after the update callback for the same response.
	OnSignal func(Signal, JobView)
	// OnError receives failed polls; the watch retries on the next tick.
	OnError func(error)
	// MaxConsecutiveErrors aborts the watch after that many failed polls in a row; 0 never aborts.
	MaxConsecutiveErrors int
}

func NewWatcher(fetcher JobFetcher) *Watcher {
	return &Watcher{Fetcher: fetcher, Interval: DefaultPollInterval}
}

// Watch polls id until the job settles or ctx is done. onUpdate sees every successful
// response. Once ctx is cancelled no callback fires.
func (w *Watcher) Watch(ctx context.Context, id string, onUpdate func(JobView)) (JobView, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var (
		last     *JobView
		failures int
	)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return lastOrZero(last), ctx.Err()
		case <-timer.C:
		}
		// select picks randomly when both are ready.
		if err := ctx.Err(); err != nil {
			return lastOrZero(last), err
		}

		view, err := w.Fetcher.Job(ctx, id)
		if ctx.Err() != nil {
			return lastOrZero(last), ctx.Err()
		}

		if err != nil {
			var respErr *ResponseError
			if errors.As(err, &respErr) && respErr.Permanent() {
				return lastOrZero(last), err
			}
			failures++
			if w.OnError != nil {
				w.OnError(err)
			}
			if w.MaxConsecutiveErrors > 0 && failures >= w.MaxConsecutiveErrors {
				return lastOrZero(last), fmt.Errorf("giving up after %d failed polls: %w", failures, err)
			}
		} else {
			failures = 0
			signals := Transitions(last, view)
			if onUpdate != nil {
				onUpdate(view)
			}
			if w.OnSignal != nil {
				for _, signal := range signals {
					if ctx.Err() != nil {
						return view, ctx.Err()
					}
					w.OnSignal(signal, view)
				}
			}
			last = &view
			if view.Settled() {
				return view, nil
			}
		}

		timer.Reset(interval)
	}
}

func lastOrZero(v *JobView) JobView {
	if v == nil {
		return JobView{}
	}
	return *v
}
