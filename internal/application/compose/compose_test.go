package compose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"postai-api/internal/config"
	"postai-api/internal/domain/entity"
	"postai-api/internal/infrastructure/llm"
	apperrors "postai-api/pkg/errors"
)

type fakeClient struct {
	resp  *llm.Response
	err   error
	calls []llm.Request
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

func (f *fakeClient) Stream(context.Context, llm.Request) (llm.TokenStream, error) {
	return nil, errors.New("not used")
}

func testConfig() config.GenerationConfig {
	return config.GenerationConfig{
		LinkedInMaxTokens: 800,
		XMaxTokens:        200,
		MaxPromptLength:   1000,
		ContextResults:    5,
		DisallowedTerms:   []string{"fuck", "shit", "bitch"},
	}
}

func strPtr(s string) *string { return &s }

func TestComposeLinkedInUnwrapsJSONEnvelope(t *testing.T) {
	fc := &fakeClient{resp: llm.StringContent(`{"linkedin":"Hello **world**"}`)}
	c := NewComposer(fc, testConfig(), "gpt-4o-mini")

	got, err := c.ComposeLinkedIn(context.Background(), "write about AI", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello **world**" {
		t.Fatalf("got %q", got)
	}
	if len(fc.calls) != 1 {
		t.Fatalf("expected exactly one completion call, got %d", len(fc.calls))
	}
	if fc.calls[0].MaxTokens != 800 || fc.calls[0].Model != "gpt-4o-mini" {
		t.Fatalf("request = %+v", fc.calls[0])
	}
}

func TestComposeLinkedInStripsHeadingSection(t *testing.T) {
	fc := &fakeClient{resp: llm.StringContent("Great post here.\n\nX: check it out! #ai")}
	got, err := NewComposer(fc, testConfig(), "m").ComposeLinkedIn(context.Background(), "p", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Great post here." {
		t.Fatalf("got %q", got)
	}
}

func TestComposeLinkedInDropsTweetLikeBlock(t *testing.T) {
	body := "First paragraph about the topic. It has many sentences. And more detail."
	fc := &fakeClient{resp: llm.StringContent(body + "\n\nLoving this idea! #ai https://x.com")}
	got, err := NewComposer(fc, testConfig(), "m").ComposeLinkedIn(context.Background(), "p", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != body {
		t.Fatalf("got %q", got)
	}
}

func TestComposeLinkedInValidation(t *testing.T) {
	cases := map[string]struct {
		prompt string
		want   error
	}{
		"too long":   {strings.Repeat("a", 1001), apperrors.ErrPromptTooLong},
		"disallowed": {"this is SHITty news", apperrors.ErrPromptDisallowed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fc := &fakeClient{resp: llm.StringContent("unused")}
			_, err := NewComposer(fc, testConfig(), "m").ComposeLinkedIn(context.Background(), tc.prompt, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
				t.Fatalf("expected InvalidInput, got %v", err)
			}
			if len(fc.calls) != 0 {
				t.Fatalf("validation must precede the network call")
			}
		})
	}

	fc := &fakeClient{resp: llm.StringContent("ok")}
	if _, err := NewComposer(fc, testConfig(), "m").ComposeLinkedIn(context.Background(), strings.Repeat("é", 1000), nil); err != nil {
		t.Fatalf("1000 runes must be accepted: %v", err)
	}
}

func TestComposeXUnwrapsWithoutHeuristics(t *testing.T) {
	fc := &fakeClient{resp: llm.StringContent("  {\"x\":\" Short take #ai \"}  ")}
	got, err := NewComposer(fc, testConfig(), "m").ComposeX(context.Background(), "p", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Short take #ai" {
		t.Fatalf("got %q", got)
	}
	if fc.calls[0].MaxTokens != 200 {
		t.Fatalf("max tokens = %d", fc.calls[0].MaxTokens)
	}

	raw := "Para.\n\nX: not stripped for x"
	fc = &fakeClient{resp: llm.StringContent(raw)}
	got, _ = NewComposer(fc, testConfig(), "m").ComposeX(context.Background(), "p", nil)
	if got != raw {
		t.Fatalf("x text must be returned unmodified, got %q", got)
	}
}

func TestComposeUpstreamFailure(t *testing.T) {
	fc := &fakeClient{err: errors.New("connection refused")}
	_, err := NewComposer(fc, testConfig(), "m").ComposeX(context.Background(), "p", nil)
	if !apperrors.IsCode(err, apperrors.CodeUpstreamUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestGroundingContextUsesFirstFiveResults(t *testing.T) {
	results := make([]entity.SearchResult, 0, 7)
	for i := 0; i < 7; i++ {
		results = append(results, entity.SearchResult{Title: "t" + string(rune('0'+i)), Snippet: "s"})
	}
	req, err := NewComposer(nil, testConfig(), "m").LinkedInRequest(context.Background(), "p", results)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(req.UserPrompt, "t0: s\nt1: s\nt2: s\nt3: s\nt4: s") || strings.Contains(req.UserPrompt, "t5: s") {
		t.Fatalf("user prompt = %q", req.UserPrompt)
	}
	if req.SystemPrompt == "" {
		t.Fatal("system prompt missing")
	}
}

func TestExtractText(t *testing.T) {
	cases := []struct {
		name string
		resp *llm.Response
		want string
	}{
		{"nil", nil, ""},
		{"no choices", &llm.Response{}, ""},
		{"string", llm.StringContent("plain"), "plain"},
		{"parts first text", &llm.Response{Choices: []llm.Choice{{Message: &llm.Message{Content: llm.Content{
			Kind:  llm.ContentParts,
			Parts: []llm.ContentPart{{Type: "image"}, {Type: "text", Text: strPtr("second")}, {Type: "text", Text: strPtr("third")}},
		}}}}}, "second"},
		{"parts without text ignores legacy", &llm.Response{Choices: []llm.Choice{{
			Message: &llm.Message{Content: llm.Content{Kind: llm.ContentParts, Parts: []llm.ContentPart{{Type: "image"}}}},
			Text:    strPtr("legacy"),
		}}}, ""},
		{"absent content falls back to legacy", &llm.Response{Choices: []llm.Choice{{
			Message: &llm.Message{Content: llm.Content{Kind: llm.ContentAbsent}},
			Text:    strPtr("legacy"),
		}}}, "legacy"},
		{"legacy only", &llm.Response{Choices: []llm.Choice{{Text: strPtr("legacy")}}}, "legacy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractText(tc.resp); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
