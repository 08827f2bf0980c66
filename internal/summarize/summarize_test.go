package summarize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	prompt string
	answer Completion
	err    error
}

func (f *fakeSummarizer) CompleteJSON(_ context.Context, prompt string) (Completion, error) {
	f.prompt = prompt
	return f.answer, f.err
}
func (f *fakeSummarizer) Provider() string { return "fake" }
func (f *fakeSummarizer) Model() string    { return "fake-1" }

var fixedNow = time.Date(2025, time.December, 21, 23, 1, 2, 0, time.UTC)

func TestGenerate_InjectsDatetime(t *testing.T) {
	f := &fakeSummarizer{answer: Completion{Text: `{"summary":"Shipped the parser."}`, InputTokens: 40, OutputTokens: 8}}

	s, c, err := Generate(context.Background(), f, DefaultTemplate(), "# 20251220\nparser work", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "Shipped the parser.", s.Summary)
	assert.Equal(t, "2025-12-21 23:01:02", s.DatetimeSummary)
	assert.Equal(t, 40, c.InputTokens)

	assert.Contains(t, f.prompt, "# 20251220\nparser work")
	assert.NotContains(t, f.prompt, Placeholder)
}

func TestGenerate_KeepsModelDatetime(t *testing.T) {
	f := &fakeSummarizer{answer: Completion{Text: `{"summary":"x","datetime_summary":"2025-01-01 00:00:00"}`}}

	s, _, err := Generate(context.Background(), f, Template("A "+Placeholder+" B "+Placeholder), "act", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01 00:00:00", s.DatetimeSummary)
	assert.Equal(t, "A act B act", f.prompt)
}

func TestGenerate_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := Generate(context.Background(), &fakeSummarizer{err: boom}, DefaultTemplate(), "", fixedNow)
	assert.ErrorIs(t, err, boom)
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr error
	}{
		{name: "plain", text: `{"summary":"ok"}`, want: "ok"},
		{name: "fenced", text: "```json\n{\"summary\":\"ok\"}\n```", want: "ok"},
		{name: "empty", text: "  ", wantErr: ErrEmptyResponse},
		{name: "blank summary", text: `{"summary":"  "}`, wantErr: ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSummary(tt.text, fixedNow)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Summary)
		})
	}

	_, err := ParseSummary("not json", fixedNow)
	assert.Error(t, err)
}

func TestLoadTemplate(t *testing.T) {
	tmpl, err := LoadTemplate("")
	require.NoError(t, err)
	assert.Contains(t, string(tmpl), Placeholder)

	dir := t.TempDir()
	good := filepath.Join(dir, "good.md")
	require.NoError(t, os.WriteFile(good, []byte("Summarize: "+Placeholder), 0644))
	tmpl, err = LoadTemplate(good)
	require.NoError(t, err)
	assert.Equal(t, "Summarize: log", tmpl.Render("log"))

	bad := filepath.Join(dir, "bad.md")
	require.NoError(t, os.WriteFile(bad, []byte("no slot"), 0644))
	_, err = LoadTemplate(bad)
	assert.Error(t, err)

	_, err = LoadTemplate(filepath.Join(dir, "missing.md"))
	assert.Error(t, err)
}

func TestSummary_WriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "left-off-7-day-summary.json")
	require.NoError(t, Summary{Summary: "s", DatetimeSummary: "2025-12-21 23:00:00"}.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"s","datetime_summary":"2025-12-21 23:00:00"}`, string(data))
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), Options{Provider: "openai", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", s.Provider())
	assert.Equal(t, "gpt-4o-mini", s.Model())

	s, err = New(context.Background(), Options{Provider: "gemini", APIKey: "k", Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", s.Provider())
	assert.Equal(t, "gemini-2.5-flash", s.Model())

	_, err = New(context.Background(), Options{Provider: "gemini"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), Options{Provider: "zai", APIKey: "k"}, nil)
	assert.Error(t, err)
}
