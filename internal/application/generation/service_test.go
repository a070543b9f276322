package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"postai-api/internal/config"
	"postai-api/internal/domain/entity"
	"postai-api/internal/infrastructure/llm"
	apperrors "postai-api/pkg/errors"
)

type fakeSearcher struct {
	results []entity.SearchResult
	calls   int
}

func (f *fakeSearcher) Search(context.Context, string) []entity.SearchResult {
	f.calls++
	return f.results
}

// fakeLLM 依据请求的 max tokens 区分目标
type fakeLLM struct {
	mu        sync.Mutex
	linkedin  string
	x         string
	failX     error
	failLI    error
	tokens    map[int][]string
	streamErr map[int]error
	completes []llm.Request
	streams   []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, req)
	if req.MaxTokens == 800 {
		if f.failLI != nil {
			return nil, f.failLI
		}
		return llm.StringContent(f.linkedin), nil
	}
	if f.failX != nil {
		return nil, f.failX
	}
	return llm.StringContent(f.x), nil
}

func (f *fakeLLM) Stream(_ context.Context, req llm.Request) (llm.TokenStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, req)
	return &fakeStream{tokens: f.tokens[req.MaxTokens], err: f.streamErr[req.MaxTokens]}, nil
}

type fakeStream struct {
	tokens []string
	err    error
	i      int
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.i < len(s.tokens) {
		s.i++
		return s.tokens[s.i-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type recordingSink struct {
	events []entity.StreamEvent
	failAt int
}

func (s *recordingSink) Emit(_ context.Context, ev entity.StreamEvent) error {
	if s.failAt > 0 && len(s.events) >= s.failAt {
		return ErrSinkClosed
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) kinds() []string {
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		if ev.Kind == entity.EventLog {
			out = append(out, "log:"+ev.Data.(entity.LogEntry).Step)
			continue
		}
		out = append(out, string(ev.Kind))
	}
	return out
}

func genConfig() config.GenerationConfig {
	return config.GenerationConfig{
		LinkedInMaxTokens: 800,
		XMaxTokens:        200,
		MaxPromptLength:   1000,
		ContextResults:    5,
		SummaryResults:    3,
		DisallowedTerms:   []string{"fuck", "shit", "bitch"},
	}
}

func fixedClock() func() time.Time {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func newService(s *fakeSearcher, c llm.CompletionClient) *Service {
	return NewService(s, c, genConfig(), "gpt-4o-mini", WithClock(fixedClock()))
}

func steps(log []entity.LogEntry) []string {
	out := make([]string, len(log))
	for i, e := range log {
		out[i] = e.Step
	}
	return out
}

func TestGenerateBatchHappyPath(t *testing.T) {
	fs := &fakeSearcher{results: []entity.SearchResult{{Title: "a", Snippet: "b"}}}
	fl := &fakeLLM{linkedin: `{"linkedin":"Long post"}`, x: `{"x":"Short #ai"}`}

	res, err := newService(fs, fl).Generate(context.Background(), "AI trends")
	if err != nil {
		t.Fatal(err)
	}
	if res.LinkedIn != "Long post" || res.X != "Short #ai" {
		t.Fatalf("result = %+v", res)
	}
	want := []string{"Received Prompt", "Searching", "Search Results", "Drafting", "LinkedIn Complete", "X Complete", "Finalizing"}
	if got := steps(res.Log); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("steps = %v", got)
	}
	if res.Log[0].Message != "AI trends" || res.Log[0].Timestamp != "2024-01-01T00:00:00.000Z" {
		t.Fatalf("first entry = %+v", res.Log[0])
	}
	if res.Log[2].Message != `[{"title":"a","snippet":"b"}]` {
		t.Fatalf("search summary = %q", res.Log[2].Message)
	}
	if len(fl.completes) != 2 || fs.calls != 1 {
		t.Fatalf("completes=%d searches=%d", len(fl.completes), fs.calls)
	}
}

func TestGenerateWithoutCredentialIsStructurallyIdempotent(t *testing.T) {
	svc := newService(&fakeSearcher{results: []entity.SearchResult{{Title: "p"}}}, nil)
	for i := 0; i < 2; i++ {
		res, err := svc.Generate(context.Background(), "hello")
		if err != nil {
			t.Fatal(err)
		}
		if res.LinkedIn != "" || res.X != "" {
			t.Fatalf("texts must be empty: %+v", res)
		}
		last := res.Log[len(res.Log)-1]
		if last.Step != "Error" || last.Message != "OpenAI API key missing" {
			t.Fatalf("last entry = %+v", last)
		}
		if len(res.Log) != 4 {
			t.Fatalf("steps = %v", steps(res.Log))
		}
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	_, err := newService(&fakeSearcher{}, &fakeLLM{}).Generate(context.Background(), "  ")
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateInvalidPromptTerminatesRun(t *testing.T) {
	fl := &fakeLLM{linkedin: "unused", x: "unused"}
	res, err := newService(&fakeSearcher{}, fl).Generate(context.Background(), strings.Repeat("a", 1001))
	if err != nil {
		t.Fatal(err)
	}
	if res.LinkedIn != "" || res.X != "" || len(fl.completes) != 0 {
		t.Fatalf("res=%+v completes=%d", res, len(fl.completes))
	}
	last := res.Log[len(res.Log)-1]
	if last.Step != "Error" || last.Message != "Prompt too long" {
		t.Fatalf("last = %+v", last)
	}
}

func TestGenerateIsolatesTargetFailures(t *testing.T) {
	fl := &fakeLLM{failLI: errors.New("timeout"), x: "tweet"}
	res, err := newService(&fakeSearcher{}, fl).Generate(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if res.LinkedIn != "" || res.X != "tweet" {
		t.Fatalf("result = %+v", res)
	}
	got := strings.Join(steps(res.Log), "|")
	if got != "Received Prompt|Searching|Search Results|Drafting|Error|LinkedIn Complete|X Complete|Finalizing" {
		t.Fatalf("steps = %s", got)
	}
	if res.Log[4].Message != "completion failed: timeout" {
		t.Fatalf("error message = %q", res.Log[4].Message)
	}
	if res.Log[5].Message != "LinkedIn generation returned empty" {
		t.Fatalf("completion note = %q", res.Log[5].Message)
	}
}

func TestStreamCoarseEventOrder(t *testing.T) {
	fl := &fakeLLM{linkedin: "Post body", x: "Tweet"}
	sink := &recordingSink{}
	if err := newService(&fakeSearcher{}, fl).Stream(context.Background(), "p", sink); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"log:Received Prompt", "log:Searching", "log:Search Results", "log:Drafting",
		"log:Generating LinkedIn", "linkedin", "log:LinkedIn Complete",
		"log:Generating X", "x", "log:X Complete",
		"log:Finalizing", "done",
	}
	if got := sink.kinds(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v", got)
	}
	done := sink.events[len(sink.events)-1].Data.(entity.DonePayload)
	if done.LinkedIn != "Post body" || done.X != "Tweet" {
		t.Fatalf("done = %+v", done)
	}
}

func TestStreamCoarseTargetFailureContinuesToDone(t *testing.T) {
	fl := &fakeLLM{linkedin: "Post body", failX: errors.New("timeout")}
	sink := &recordingSink{}
	if err := newService(&fakeSearcher{}, fl).Stream(context.Background(), "p", sink); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"log:Received Prompt", "log:Searching", "log:Search Results", "log:Drafting",
		"log:Generating LinkedIn", "linkedin", "log:LinkedIn Complete",
		"log:Generating X", "error", "x", "log:X Complete",
		"log:Finalizing", "done",
	}
	if got := sink.kinds(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v", got)
	}
	done := sink.events[len(sink.events)-1].Data.(entity.DonePayload)
	if done.LinkedIn != "Post body" || done.X != "" {
		t.Fatalf("done = %+v", done)
	}
}

func TestStreamWithoutCredential(t *testing.T) {
	sink := &recordingSink{}
	if err := newService(&fakeSearcher{}, nil).Stream(context.Background(), "p", sink); err != nil {
		t.Fatal(err)
	}
	want := "log:Received Prompt,log:Searching,log:Search Results,error,done"
	if got := strings.Join(sink.kinds(), ","); got != want {
		t.Fatalf("events = %s", got)
	}
	if msg := sink.events[3].Data.(entity.ErrorPayload).Message; msg != "OpenAI API key missing" {
		t.Fatalf("error = %q", msg)
	}
	if d := sink.events[4].Data.(entity.DonePayload); d.LinkedIn != "" || d.X != "" {
		t.Fatalf("done = %+v", d)
	}
}

func TestStreamStopsWhenSinkCloses(t *testing.T) {
	fl := &fakeLLM{linkedin: "a", x: "b"}
	sink := &recordingSink{failAt: 2}
	err := newService(&fakeSearcher{}, fl).Stream(context.Background(), "p", sink)
	if !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("err = %v", err)
	}
	if len(fl.completes) != 0 {
		t.Fatalf("producer kept working after the consumer left")
	}
}

func TestStreamTokens(t *testing.T) {
	fl := &fakeLLM{tokens: map[int][]string{
		800: {`{"linkedin":"Hel`, `lo"}`},
		200: {"Sh", "ort"},
	}}
	sink := &recordingSink{}
	if err := newService(&fakeSearcher{}, fl).StreamTokens(context.Background(), "p", sink); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"log:Received Prompt", "log:Searching", "log:Search Results", "log:Drafting",
		"log:Generating LinkedIn", "token", "token", "linkedin_done", "log:LinkedIn Complete",
		"log:Generating X", "token", "token", "x_done", "log:X Complete",
		"log:Finalizing", "done",
	}
	if got := sink.kinds(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v", got)
	}
	if tok := sink.events[5].Data.(entity.TokenPayload); tok.Which != entity.TargetLinkedIn || tok.Token != `{"linkedin":"Hel` {
		t.Fatalf("token = %+v", tok)
	}
	if d := sink.events[7].Data.(entity.TextPayload); d.Text != "Hello" {
		t.Fatalf("linkedin_done = %q", d.Text)
	}
	done := sink.events[len(sink.events)-1].Data.(entity.DonePayload)
	if done.LinkedIn != "Hello" || done.X != "Short" {
		t.Fatalf("done = %+v", done)
	}
	if len(fl.streams) != 2 || len(fl.completes) != 0 {
		t.Fatalf("streams=%d completes=%d", len(fl.streams), len(fl.completes))
	}
}

func TestStreamTokensMidStreamErrorContinuesWithSibling(t *testing.T) {
	fl := &fakeLLM{
		tokens:    map[int][]string{800: {"Part"}, 200: {"Tweet"}},
		streamErr: map[int]error{800: errors.New("reset by peer")},
	}
	sink := &recordingSink{}
	if err := newService(&fakeSearcher{}, fl).StreamTokens(context.Background(), "p", sink); err != nil {
		t.Fatal(err)
	}
	kinds := strings.Join(sink.kinds(), ",")
	if !strings.Contains(kinds, "token,error,linkedin_done") || !strings.HasSuffix(kinds, "x_done,log:X Complete,log:Finalizing,done") {
		t.Fatalf("events = %s", kinds)
	}
	done := sink.events[len(sink.events)-1].Data.(entity.DonePayload)
	if done.LinkedIn != "Part" || done.X != "Tweet" {
		t.Fatalf("done = %+v", done)
	}
}

func TestStreamTokensInvalidPrompt(t *testing.T) {
	fl := &fakeLLM{}
	sink := &recordingSink{}
	if err := newService(&fakeSearcher{}, fl).StreamTokens(context.Background(), "shit happens", sink); err != nil {
		t.Fatal(err)
	}
	kinds := sink.kinds()
	if got := strings.Join(kinds[len(kinds)-2:], ","); got != "error,done" {
		t.Fatalf("events = %v", kinds)
	}
	if len(fl.streams) != 0 {
		t.Fatal("no stream must be opened for invalid input")
	}
}
