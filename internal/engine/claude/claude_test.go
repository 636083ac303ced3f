package claude

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/prioritizer/internal/priority"
)

const testModel = "claude-haiku-4-5"

// mockSender returns a preconfigured reply and records the request params.
type mockSender struct {
	mu     sync.Mutex
	reply  string
	err    error
	params []anthropic.MessageNewParams
}

func (m *mockSender) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = append(m.params, body)
	if m.err != nil {
		return nil, m.err
	}
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: m.reply},
		},
		StopReason: anthropic.StopReasonEndTurn,
		Usage:      anthropic.Usage{InputTokens: 120, OutputTokens: 18},
	}, nil
}

// deadlineSender records whether each call carried a context deadline.
type deadlineSender struct {
	mu        sync.Mutex
	deadlines []bool
}

func (d *deadlineSender) New(ctx context.Context, _ anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := ctx.Deadline()
	d.deadlines = append(d.deadlines, ok)
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: `{"urgent":0.7,"normal":0.2,"low priority":0.1}`}},
	}, nil
}

func newTestEngine(sender messageSender) *Engine {
	return &Engine{messages: sender, model: testModel}
}

func TestClassify_ParsesAndSorts(t *testing.T) {
	t.Parallel()

	sender := &mockSender{reply: `{"urgent": 0.05, "normal": 0.25, "low priority": 0.7}`}
	e := newTestEngine(sender)

	got, err := e.Classify(context.Background(), "update the changelog sometime", priority.CandidateLabels(), false)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	want := []priority.LabelScore{
		{Label: "low priority", Score: 0.7},
		{Label: "normal", Score: 0.25},
		{Label: "urgent", Score: 0.05},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestClassify_RequestParams(t *testing.T) {
	t.Parallel()

	sender := &mockSender{reply: `{"urgent": 1, "normal": 0, "low priority": 0}`}
	e := newTestEngine(sender)

	if _, err := e.Classify(context.Background(), "server is down in production", priority.CandidateLabels(), false); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if len(sender.params) != 1 {
		t.Fatalf("calls = %d, want 1", len(sender.params))
	}
	p := sender.params[0]
	if string(p.Model) != testModel {
		t.Errorf("model = %q, want %q", p.Model, testModel)
	}
	if p.MaxTokens != responseTokens {
		t.Errorf("max tokens = %d, want %d", p.MaxTokens, responseTokens)
	}
	if len(p.System) != 1 || !strings.Contains(p.System[0].Text, `"low priority"`) {
		t.Errorf("system prompt does not list candidate labels: %+v", p.System)
	}
	if len(p.Messages) != 1 || len(p.Messages[0].Content) != 1 || p.Messages[0].Content[0].OfText == nil {
		t.Fatalf("unexpected messages: %+v", p.Messages)
	}
	if !strings.Contains(p.Messages[0].Content[0].OfText.Text, "server is down in production") {
		t.Errorf("user prompt = %q, missing description", p.Messages[0].Content[0].OfText.Text)
	}
}

func TestClassify_ReportsUsage(t *testing.T) {
	t.Parallel()

	var in, out int
	e := &Engine{
		messages: &mockSender{reply: `{"urgent": 0.9, "normal": 0.1, "low priority": 0}`},
		model:    testModel,
		onUsage:  func(i, o int) { in, out = i, o },
	}
	if _, err := e.Classify(context.Background(), "x", priority.CandidateLabels(), false); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if in != 120 || out != 18 {
		t.Errorf("usage = (%d, %d), want (120, 18)", in, out)
	}
}

func TestClassify_SenderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("overloaded")
	e := newTestEngine(&mockSender{err: boom})

	_, err := e.Classify(context.Background(), "x", priority.CandidateLabels(), false)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapping %v", err, boom)
	}
}

func TestClassify_NoLabels(t *testing.T) {
	t.Parallel()

	sender := &mockSender{reply: `{}`}
	e := newTestEngine(sender)

	if _, err := e.Classify(context.Background(), "x", nil, false); err == nil {
		t.Fatal("expected error for empty label set")
	}
	if len(sender.params) != 0 {
		t.Error("sender called with empty label set")
	}
}

func TestParseScores(t *testing.T) {
	t.Parallel()

	labels := priority.CandidateLabels()

	tests := []struct {
		name      string
		reply     string
		wantTop   string
		wantScore float64
		wantErr   bool
	}{
		{"plain object", `{"urgent":0.92,"normal":0.05,"low priority":0.03}`, "urgent", 0.92, false},
		{"code fenced", "```json\n{\"urgent\":0.1,\"normal\":0.8,\"low priority\":0.1}\n```", "normal", 0.8, false},
		{"surrounding prose", `Here you go: {"low priority": 0.6, "normal": 0.3, "urgent": 0.1} hope that helps`, "low priority", 0.6, false},
		{"missing label scores zero", `{"urgent":0.4}`, "urgent", 0.4, false},
		{"tie keeps candidate order", `{"urgent":0.5,"normal":0.5,"low priority":0}`, "urgent", 0.5, false},
		{"negative clamped", `{"urgent":-1,"normal":0.2,"low priority":0.1}`, "normal", 0.2, false},
		{"extra labels ignored", `{"critical":0.99,"urgent":0.01}`, "urgent", 0.01, false},
		{"no json", `I think it's urgent`, "", 0, true},
		{"invalid json", `{"urgent": high}`, "", 0, true},
		{"no candidate labels", `{"critical":1}`, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseScores(tt.reply, labels)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseScores error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(labels) {
				t.Fatalf("len = %d, want %d", len(got), len(labels))
			}
			if got[0].Label != tt.wantTop || got[0].Score != tt.wantScore {
				t.Errorf("top = %+v, want {%s %v}", got[0], tt.wantTop, tt.wantScore)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Score > got[i-1].Score {
					t.Errorf("ranking not descending at %d: %v", i, got)
				}
			}
		})
	}
}

func TestLoad_WarmUp(t *testing.T) {
	t.Parallel()

	sender := &mockSender{reply: `{"urgent":0.1,"normal":0.8,"low priority":0.1}`}
	e, err := load(context.Background(), sender, Options{Model: testModel})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.Model() != testModel {
		t.Errorf("Model() = %q, want %q", e.Model(), testModel)
	}
	if len(sender.params) != 1 {
		t.Errorf("warm-up calls = %d, want 1", len(sender.params))
	}
}

func TestLoad_WarmUpUsesLoadContextOnly(t *testing.T) {
	t.Parallel()

	sender := &deadlineSender{}
	e, err := load(context.Background(), sender, Options{Model: testModel, Timeout: time.Second})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := e.Classify(context.Background(), "db on fire", priority.CandidateLabels(), false); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if len(sender.deadlines) != 2 {
		t.Fatalf("calls = %d, want 2", len(sender.deadlines))
	}
	if sender.deadlines[0] {
		t.Error("warm-up carried the per-request timeout, want only the load context")
	}
	if !sender.deadlines[1] {
		t.Error("Classify carried no deadline, want per-request timeout")
	}
}

func TestLoad_Failure(t *testing.T) {
	t.Parallel()

	e, err := load(context.Background(), &mockSender{err: errors.New("not_found_error: model")}, Options{Model: "claude-nope"})
	if err == nil {
		t.Fatal("expected load to fail")
	}
	if e != nil {
		t.Error("load returned a non-nil engine on failure")
	}
	if !strings.Contains(err.Error(), "claude-nope") {
		t.Errorf("error %q does not name the model", err)
	}
}

func TestLoad_RequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	if _, err := Load(context.Background(), Options{Model: testModel}); err == nil {
		t.Error("Load without api key succeeded")
	}
	if _, err := Load(context.Background(), Options{APIKey: "sk-test"}); err == nil {
		t.Error("Load without model succeeded")
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()

	single := buildSystemPrompt(priority.CandidateLabels(), false)
	for _, l := range priority.CandidateLabels() {
		if !strings.Contains(single, `"`+l+`"`) {
			t.Errorf("system prompt missing label %q", l)
		}
	}
	if !strings.Contains(single, "sum to 1") {
		t.Error("single-label prompt missing sum constraint")
	}

	multi := buildSystemPrompt(priority.CandidateLabels(), true)
	if strings.Contains(multi, "sum to 1") {
		t.Error("multi-label prompt should not require scores to sum to 1")
	}
}
