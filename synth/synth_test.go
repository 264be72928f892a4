package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gollem"

	"inspira/board"
	"inspira/diag"
	"inspira/utterance"
)

type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{`{"category":"observation","title":"T","text":"X","palette":"neutral","priority":3}`}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) { return nil, nil }

func (s *mockLLMSession) AppendHistory(*gollem.History) error { return nil }

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

func respondingClient(text string) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					return &gollem.Response{Texts: []string{text}}, nil
				},
			}, nil
		},
	}
}

func failingClient(err error) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					return nil, err
				},
			}, nil
		},
	}
}

func TestGenerateSuccess(t *testing.T) {
	raw := "```json\n" + `{
		"category": "action-item",
		"title": "Analyze Competitor Launch",
		"text": "Research competitor strategies.",
		"links": ["https://example.com/report", "ftp://nope", "notaurl"],
		"palette": "primary",
		"priority": 8
	}` + "\n```"

	rec := diag.NewLog()
	c := New(respondingClient(raw), rec)
	c.rnd = func() float64 { return 1 } // rotation = 1*6-3 = 3

	tile := c.Generate(context.Background(), utterance.Input{Transcript: "competitors did a launch"}, 100, 50)

	if tile.Category != board.ActionItem {
		t.Errorf("category = %q", tile.Category)
	}
	if tile.Content.Title != "Analyze Competitor Launch" {
		t.Errorf("title = %q", tile.Content.Title)
	}
	if len(tile.Content.Links) != 1 || tile.Content.Links[0] != "https://example.com/report" {
		t.Errorf("links = %v, want only the https URL", tile.Content.Links)
	}
	if tile.Style.Palette != board.PalettePrimary || tile.Style.Priority != 8 {
		t.Errorf("style = %+v", tile.Style)
	}
	if tile.X != 100 || tile.Y != 50 {
		t.Errorf("position = (%v, %v)", tile.X, tile.Y)
	}
	if tile.Rotation != 3 {
		t.Errorf("rotation = %v, want 3", tile.Rotation)
	}
	if tile.Life.Duration != board.DefaultDuration || !tile.Life.PauseOnHover || !tile.Life.AllowPin {
		t.Errorf("life = %+v", tile.Life)
	}
	if tile.ID == "" {
		t.Error("tile has no ID")
	}

	var seen []diag.EntryType
	for _, e := range rec.Entries() {
		seen = append(seen, e.Type)
	}
	for _, want := range []diag.EntryType{diag.TypeSynthPrompt, diag.TypeSynthRaw, diag.TypeSynthParsed, diag.TypeSynthTile} {
		found := false
		for _, got := range seen {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("diag missing %q entry (got %v)", want, seen)
		}
	}
}

func TestGenerateNormalizesFields(t *testing.T) {
	raw := `{"category":"banana","title":"","text":"","palette":"sparkly","priority":0}`
	rec := diag.NewLog()
	c := New(respondingClient(raw), rec)

	tile := c.Generate(context.Background(), utterance.Input{Transcript: "something"}, 0, 0)

	if tile.Category != board.Observation {
		t.Errorf("category = %q, want observation fallback", tile.Category)
	}
	if tile.Content.Title != "Idea Processing Error" {
		t.Errorf("title = %q", tile.Content.Title)
	}
	if tile.Content.Text != "Could not generate details for this idea." {
		t.Errorf("text = %q", tile.Content.Text)
	}
	if tile.Style.Palette != board.PaletteNeutral {
		t.Errorf("palette = %q", tile.Style.Palette)
	}
	if tile.Style.Priority != 3 {
		t.Errorf("priority = %d, want default 3", tile.Style.Priority)
	}

	logged := false
	for _, e := range rec.Entries() {
		if e.Type == diag.TypeSynthError {
			logged = true
		}
	}
	if !logged {
		t.Error("category substitution was not recorded")
	}
}

func TestGenerateWithoutClient(t *testing.T) {
	rec := diag.NewLog()
	c := New(nil, rec)

	tile := c.Generate(context.Background(), utterance.Input{Transcript: "hello"}, 10, 20)

	if tile.Content.Title != "Synthesis Config Error" {
		t.Errorf("title = %q", tile.Content.Title)
	}
	if tile.Category != board.Observation || tile.Style.Palette != board.PaletteWarning {
		t.Errorf("category/palette = %q/%q", tile.Category, tile.Style.Palette)
	}
	if tile.Style.Priority != 1 || tile.Rotation != 0 {
		t.Errorf("error tile style: priority=%d rotation=%v", tile.Style.Priority, tile.Rotation)
	}
	for _, e := range rec.Entries() {
		if e.Type == diag.TypeSynthPrompt {
			t.Error("prompt was built without a configured client")
		}
	}
}

func TestGenerateFailureTiles(t *testing.T) {
	for _, tt := range []struct {
		name         string
		client       *mockLLMClient
		wantTitle    string
		wantCategory board.Category
	}{
		{
			name:         "malformed json",
			client:       respondingClient("I'd be happy to help with that!"),
			wantTitle:    "AI Formatting Error",
			wantCategory: board.Creative,
		},
		{
			name:         "safety block",
			client:       failingClient(errors.New("model response was blocked by safety filters")),
			wantTitle:    "Content Flagged",
			wantCategory: board.Creative,
		},
		{
			name:         "bad credentials",
			client:       failingClient(errors.New("API key not valid. Please pass a valid API key.")),
			wantTitle:    "LLM Credentials Invalid",
			wantCategory: board.Observation,
		},
		{
			name:         "generic failure",
			client:       failingClient(errors.New("rpc error: unavailable")),
			wantTitle:    "Idea Capture Failed",
			wantCategory: board.Observation,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := diag.NewLog()
			c := New(tt.client, rec)
			tile := c.Generate(context.Background(), utterance.Input{Transcript: "some idea worth keeping around"}, 0, 0)

			if tile.Content.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", tile.Content.Title, tt.wantTitle)
			}
			if tile.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", tile.Category, tt.wantCategory)
			}
			if tile.Style.Palette != board.PaletteWarning || tile.Style.Priority != 1 || tile.Rotation != 0 {
				t.Errorf("error tile style: %+v rotation=%v", tile.Style, tile.Rotation)
			}

			errLogged := false
			for _, e := range rec.Entries() {
				if e.Type == diag.TypeSynthError {
					errLogged = true
				}
			}
			if !errLogged {
				t.Error("failure was not recorded")
			}
		})
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	in := utterance.Input{
		Transcript: "we should look at caching",
		Summary:    "Consider adding caching.",
		Topics:     []string{"performance", "caching"},
	}
	p := buildPrompt(in)
	for _, want := range []string{`"we should look at caching"`, `"Consider adding caching."`, "- performance\n- caching"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	bare := buildPrompt(utterance.Input{Transcript: "just words"})
	if strings.Contains(bare, "AI-generated summary") || strings.Contains(bare, "AI-detected topics") {
		t.Error("empty summary/topics still rendered context sections")
	}
}

func TestStripFence(t *testing.T) {
	for _, tt := range []struct {
		in, want string
	}{
		{"{\"a\":1}", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"```json\n```", ""},
	} {
		if got := stripFence(tt.in); got != tt.want {
			t.Errorf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClampPriority(t *testing.T) {
	for _, tt := range []struct {
		raw  any
		want int
	}{
		{float64(5), 5},
		{float64(0), 3},
		{float64(-2), 1},
		{float64(99), 10},
		{float64(7.9), 7},
		{"8", 8},
		{"high", 3},
		{nil, 3},
	} {
		if got := clampPriority(tt.raw); got != tt.want {
			t.Errorf("clampPriority(%v) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
