package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultSuggestionCount = 5
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 300

	// MaxPromptTextChars bounds the document text embedded in a prompt.
	MaxPromptTextChars = 12000
)

// SuggestionParams are the sampling parameters every provider receives.
type SuggestionParams struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

func (p SuggestionParams) Normalize(defaultModel string) SuggestionParams {
	out := p
	if strings.TrimSpace(out.Model) == "" {
		out.Model = defaultModel
	}
	if out.Temperature <= 0 {
		out.Temperature = DefaultTemperature
	}
	if out.MaxOutputTokens <= 0 {
		out.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return out
}

func BuildSuggestionPrompt(text string, count int) string {
	if count <= 0 {
		count = DefaultSuggestionCount
	}
	return fmt.Sprintf(`You are a social media expert. Analyze the following text and give %d suggestions
to improve engagement, readability, hashtags, call to action, and sentiment.
Return one suggestion per line, without numbering and without any introduction.

Text:
%s

Suggestions:
`, count, truncateRunes(strings.TrimSpace(text), MaxPromptTextChars))
}

// ParseSuggestions splits a model reply into trimmed non-empty lines and keeps at most
// count of them. Lines are otherwise kept verbatim.
func ParseSuggestions(raw string, count int) []string {
	out := make([]string, 0, count)
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
