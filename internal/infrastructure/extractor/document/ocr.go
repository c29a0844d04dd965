package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

const (
	DefaultTesseractBinary   = "tesseract"
	DefaultTesseractLanguage = "eng"

	EngineGosseract    = "gosseract"
	EngineTesseractCLI = "tesseract-cli"
)

// GosseractEngine runs OCR in-process through libtesseract bindings.
type GosseractEngine struct {
	languages []string
}

func NewGosseractEngine(languages ...string) *GosseractEngine {
	return &GosseractEngine{languages: normalizeLanguages(languages)}
}

func (e *GosseractEngine) Name() string { return EngineGosseract }

func (e *GosseractEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}

// CLIEngine shells out to the tesseract binary and reads text from stdout.
type CLIEngine struct {
	runner   Runner
	binary   string
	language string
}

func NewCLIEngine(runner Runner, binary string, languages ...string) *CLIEngine {
	if runner == nil {
		runner = ExecRunner{}
	}
	if strings.TrimSpace(binary) == "" {
		binary = DefaultTesseractBinary
	}
	return &CLIEngine{
		runner:   runner,
		binary:   binary,
		language: strings.Join(normalizeLanguages(languages), "+"),
	}
}

func (e *CLIEngine) Name() string { return EngineTesseractCLI }

func (e *CLIEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	stdout, stderr, err := e.runner.Run(ctx, e.binary, imagePath, "stdout", "-l", e.language)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", e.binary, err, strings.TrimSpace(truncate(string(stderr), 512)))
	}
	return string(stdout), nil
}

// NewOCREngine builds the engine selected by name.
func NewOCREngine(name string, runner Runner, tesseractBinary string, languages ...string) (OCREngine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EngineGosseract:
		return NewGosseractEngine(languages...), nil
	case EngineTesseractCLI:
		return NewCLIEngine(runner, tesseractBinary, languages...), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", name)
	}
}

func normalizeLanguages(languages []string) []string {
	out := make([]string, 0, len(languages))
	for _, lang := range languages {
		for _, part := range strings.FieldsFunc(lang, func(r rune) bool { return r == ',' || r == '+' }) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 {
		out = append(out, DefaultTesseractLanguage)
	}
	return out
}
