package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
	"github.com/kirillkom/content-analyzer/internal/core/ports"
)

const DefaultSuggestionCount = 5

// SuggestionStage turns extracted text into a bounded list of improvement suggestions.
type SuggestionStage struct {
	generator ports.SuggestionGenerator
	count     int
	timeout   time.Duration
}

func NewSuggestionStage(generator ports.SuggestionGenerator, count int, timeout time.Duration) *SuggestionStage {
	if count <= 0 {
		count = DefaultSuggestionCount
	}
	return &SuggestionStage{
		generator: generator,
		count:     count,
		timeout:   timeout,
	}
}

// Run returns an empty list for blank text without calling the generator. Every
// generator failure, including a reply with no usable lines, is wrapped with
// domain.ErrSuggestion.
func (s *SuggestionStage) Run(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	if s.generator == nil {
		return nil, domain.WrapError(domain.ErrSuggestion, "generate suggestions", errors.New("no suggestion provider configured"))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	suggestions, err := s.generator.GenerateSuggestions(ctx, text, s.count)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", s.timeout, err)
		}
		return nil, domain.WrapError(domain.ErrSuggestion, "generate suggestions", err)
	}

	out := make([]string, 0, len(suggestions))
	for _, suggestion := range suggestions {
		if suggestion = strings.TrimSpace(suggestion); suggestion != "" {
			out = append(out, suggestion)
		}
		if len(out) == s.count {
			break
		}
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrSuggestion, "generate suggestions", errors.New("empty model response"))
	}
	return out, nil
}

func (s *SuggestionStage) Count() int {
	return s.count
}
