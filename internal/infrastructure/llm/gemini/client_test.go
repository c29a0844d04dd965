package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/llm"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/resilience"
)

type fakeModels struct {
	replies []string
	errs    []error
	calls   int
	model   string
	prompt  string
	config  *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	idx := f.calls
	f.calls++
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	reply := ""
	if idx < len(f.replies) {
		reply = f.replies[idx]
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(reply, genai.RoleModel),
		}},
	}, nil
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
}

func TestGenerateSuggestionsParsesReply(t *testing.T) {
	models := &fakeModels{replies: []string{"Add a CTA\n\n  Use #hashtags  \nShorter intro\nFriendlier tone\nAsk a question\nExtra line"}}
	gen := NewWithModels(models, llm.SuggestionParams{}, testExecutor())

	got, err := gen.GenerateSuggestions(context.Background(), "We launched a product", 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"Add a CTA", "Use #hashtags", "Shorter intro", "Friendlier tone", "Ask a question"}, got)
	assert.Equal(t, DefaultModel, models.model)
	assert.Contains(t, models.prompt, "We launched a product")
	require.NotNil(t, models.config.Temperature)
	assert.InDelta(t, 0.7, *models.config.Temperature, 0.0001)
	assert.Equal(t, int32(300), models.config.MaxOutputTokens)
}

func TestGenerateSuggestionsRetriesUnavailable(t *testing.T) {
	models := &fakeModels{
		errs:    []error{genai.APIError{Code: 503, Message: "overloaded"}, nil},
		replies: []string{"", "one"},
	}
	gen := NewWithModels(models, llm.SuggestionParams{Model: "gemini-custom"}, testExecutor())

	got, err := gen.GenerateSuggestions(context.Background(), "text", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, got)
	assert.Equal(t, 2, models.calls)
	assert.Equal(t, "gemini-custom", models.model)
}

func TestGenerateSuggestionsDoesNotRetryAuthFailure(t *testing.T) {
	models := &fakeModels{errs: []error{genai.APIError{Code: 403, Message: "API key not valid"}}}
	gen := NewWithModels(models, llm.SuggestionParams{}, testExecutor())

	_, err := gen.GenerateSuggestions(context.Background(), "text", 5)
	require.Error(t, err)
	assert.Equal(t, 1, models.calls)
	assert.False(t, domain.IsKind(err, domain.ErrTemporary))
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGenerateSuggestionsMarksExhaustedRetriesTemporary(t *testing.T) {
	unavailable := genai.APIError{Code: 503, Message: "overloaded"}
	models := &fakeModels{errs: []error{unavailable, unavailable, unavailable}}
	gen := NewWithModels(models, llm.SuggestionParams{}, testExecutor())

	_, err := gen.GenerateSuggestions(context.Background(), "text", 5)
	require.Error(t, err)
	assert.Equal(t, 3, models.calls)
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))
}

func TestGenerateSuggestionsWithoutExecutor(t *testing.T) {
	models := &fakeModels{errs: []error{errors.New("dial tcp: connection refused")}}
	gen := NewWithModels(models, llm.SuggestionParams{}, nil)

	_, err := gen.GenerateSuggestions(context.Background(), "text", 5)
	require.Error(t, err)
	assert.Equal(t, 1, models.calls)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), " ", llm.SuggestionParams{}, nil)
	assert.Error(t, err)
}
