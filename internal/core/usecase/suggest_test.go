package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

type generatorFake struct {
	mu          sync.Mutex
	suggestions []string
	err         error
	block       bool
	calls       int
	lastCount   int
}

func (f *generatorFake) GenerateSuggestions(ctx context.Context, _ string, count int) ([]string, error) {
	f.mu.Lock()
	f.calls++
	f.lastCount = count
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestions, nil
}

func (f *generatorFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSuggestionStageSkipsBlankText(t *testing.T) {
	gen := &generatorFake{}
	stage := NewSuggestionStage(gen, 5, time.Second)

	got, err := stage.Run(context.Background(), " \n\t ")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
	if gen.calls != 0 {
		t.Fatalf("expected no generator call, got %d", gen.calls)
	}
}

func TestSuggestionStageCapsAndTrims(t *testing.T) {
	gen := &generatorFake{suggestions: []string{" a ", "", "b", "c", "d", "e", "f"}}
	stage := NewSuggestionStage(gen, 0, time.Second)

	got, err := stage.Run(context.Background(), "post text")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != DefaultSuggestionCount || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected suggestions %#v", got)
	}
	if gen.lastCount != DefaultSuggestionCount {
		t.Fatalf("expected count %d requested, got %d", DefaultSuggestionCount, gen.lastCount)
	}
}

func TestSuggestionStageWrapsProviderFailure(t *testing.T) {
	stage := NewSuggestionStage(&generatorFake{err: errors.New("429 rate limited")}, 5, time.Second)

	_, err := stage.Run(context.Background(), "post text")
	if !domain.IsKind(err, domain.ErrSuggestion) {
		t.Fatalf("expected ErrSuggestion, got %v", err)
	}
}

func TestSuggestionStageTreatsEmptyReplyAsFailure(t *testing.T) {
	stage := NewSuggestionStage(&generatorFake{suggestions: []string{" ", ""}}, 5, time.Second)

	_, err := stage.Run(context.Background(), "post text")
	if !domain.IsKind(err, domain.ErrSuggestion) {
		t.Fatalf("expected ErrSuggestion, got %v", err)
	}
}

func TestSuggestionStageTimesOut(t *testing.T) {
	stage := NewSuggestionStage(&generatorFake{block: true}, 5, 10*time.Millisecond)

	start := time.Now()
	_, err := stage.Run(context.Background(), "post text")
	if !domain.IsKind(err, domain.ErrSuggestion) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected suggestion timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestSuggestionStageWithoutProvider(t *testing.T) {
	stage := NewSuggestionStage(nil, 5, time.Second)

	if _, err := stage.Run(context.Background(), "post text"); !domain.IsKind(err, domain.ErrSuggestion) {
		t.Fatalf("expected ErrSuggestion, got %v", err)
	}
	got, err := stage.Run(context.Background(), "")
	if err != nil || len(got) != 0 {
		t.Fatalf("blank text must still succeed without provider, got %v, %v", got, err)
	}
}
