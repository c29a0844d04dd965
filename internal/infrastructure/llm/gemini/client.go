package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/content-analyzer/internal/infrastructure/llm"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/resilience"
)

const DefaultModel = "gemini-2.5-flash"

// ContentGenerator is the slice of the genai Models service used here.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Generator struct {
	models   ContentGenerator
	params   llm.SuggestionParams
	executor *resilience.Executor
}

func New(ctx context.Context, apiKey string, params llm.SuggestionParams, executor *resilience.Executor) (*Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewWithModels(client.Models, params, executor), nil
}

func NewWithModels(models ContentGenerator, params llm.SuggestionParams, executor *resilience.Executor) *Generator {
	return &Generator{
		models:   models,
		params:   params.Normalize(DefaultModel),
		executor: executor,
	}
}

func (g *Generator) GenerateSuggestions(ctx context.Context, text string, count int) ([]string, error) {
	if count <= 0 {
		count = llm.DefaultSuggestionCount
	}
	contents := []*genai.Content{
		genai.NewContentFromText(llm.BuildSuggestionPrompt(text, count), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.params.Temperature),
		MaxOutputTokens: g.params.MaxOutputTokens,
		// Thinking tokens count against MaxOutputTokens on 2.5 models.
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}

	call := func(ctx context.Context) (string, error) {
		resp, err := g.models.GenerateContent(ctx, g.params.Model, contents, config)
		if err != nil {
			return "", &apiError{err: err}
		}
		return resp.Text(), nil
	}

	var (
		raw string
		err error
	)
	if g.executor != nil {
		raw, err = resilience.Do(ctx, g.executor, resilience.OpGeminiGenerate, call, resilience.ClassifyRemote)
	} else {
		raw, err = call(ctx)
	}
	if err != nil {
		return nil, resilience.WrapTemporary("gemini generate", err, resilience.ClassifyRemote)
	}
	return llm.ParseSuggestions(raw, count), nil
}

// apiError exposes the HTTP status of a genai failure to the shared classifier.
type apiError struct {
	err error
}

func (e *apiError) Error() string { return "gemini generate: " + e.err.Error() }

func (e *apiError) Unwrap() error { return e.err }

func (e *apiError) HTTPStatus() int {
	var value genai.APIError
	if errors.As(e.err, &value) {
		return value.Code
	}
	var ptr *genai.APIError
	if errors.As(e.err, &ptr) && ptr != nil {
		return ptr.Code
	}
	return 0
}
