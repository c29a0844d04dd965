package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/content-analyzer/internal/infrastructure/llm"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/resilience"
)

const DefaultModel = "llama3.1"

type Client struct {
	baseURL    string
	params     llm.SuggestionParams
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, params llm.SuggestionParams, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		params:     params.Normalize(DefaultModel),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Generator produces post improvement suggestions through a local Ollama server.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateSuggestions(ctx context.Context, text string, count int) ([]string, error) {
	if count <= 0 {
		count = llm.DefaultSuggestionCount
	}
	raw, err := g.client.generateText(ctx, llm.BuildSuggestionPrompt(text, count))
	if err != nil {
		return nil, err
	}
	return llm.ParseSuggestions(raw, count), nil
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.params.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": c.params.Temperature,
			"num_predict": c.params.MaxOutputTokens,
		},
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, "generate")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, resilience.OpOllamaGenerate, call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}
