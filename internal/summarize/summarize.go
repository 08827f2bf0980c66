// Package summarize turns the extracted activity markup into a short digest through a
// language model. Providers only complete a prompt into JSON text; Generate owns the
// template substitution, the JSON contract and the datetime_summary stamp.
package summarize

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"pwsvc/internal/datefmt"
)

// Placeholder is replaced by the extracted activity markup.
const Placeholder = "<< last-7-days-activities.md >>"

//go:embed templates/left-off-summarizer.md
var defaultTemplate string

// ErrEmptyResponse is returned when the model produced no usable summary.
var ErrEmptyResponse = errors.New("model returned an empty summary")

// Completion is a provider's raw answer.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Summarizer completes a prompt into a JSON object.
type Summarizer interface {
	CompleteJSON(ctx context.Context, prompt string) (Completion, error)
	Provider() string
	Model() string
}

// Summary is the persisted digest.
type Summary struct {
	Summary         string `json:"summary"`
	DatetimeSummary string `json:"datetime_summary"`
}

// Template is a prompt with a Placeholder slot.
type Template string

// DefaultTemplate returns the built-in prompt.
func DefaultTemplate() Template {
	return Template(defaultTemplate)
}

// LoadTemplate reads a template file; an empty path yields DefaultTemplate.
func LoadTemplate(path string) (Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template: %w", err)
	}
	if !strings.Contains(string(data), Placeholder) {
		return "", fmt.Errorf("prompt template %s lacks placeholder %q", path, Placeholder)
	}
	return Template(data), nil
}

// Render substitutes activities into every placeholder occurrence.
func (t Template) Render(activities string) string {
	return strings.ReplaceAll(string(t), Placeholder, activities)
}

// Generate renders the prompt, asks s for a JSON digest and stamps
// datetime_summary with now when the model left it out.
func Generate(ctx context.Context, s Summarizer, tmpl Template, activities string, now time.Time) (Summary, Completion, error) {
	completion, err := s.CompleteJSON(ctx, tmpl.Render(activities))
	if err != nil {
		return Summary{}, completion, err
	}
	summary, err := ParseSummary(completion.Text, now)
	return summary, completion, err
}

// ParseSummary decodes a model answer. Code fences around the object are tolerated.
func ParseSummary(text string, now time.Time) (Summary, error) {
	text = stripFences(text)
	if text == "" {
		return Summary{}, ErrEmptyResponse
	}
	var s Summary
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return Summary{}, fmt.Errorf("failed to parse summary JSON: %w", err)
	}
	if strings.TrimSpace(s.Summary) == "" {
		return Summary{}, ErrEmptyResponse
	}
	if s.DatetimeSummary == "" {
		s.DatetimeSummary = datefmt.Timestamp(now)
	}
	return s, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// WriteJSON writes s as indented JSON to path.
func (s Summary) WriteJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
