// Package claude implements priority.Engine with zero-shot prompting against
// the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/prioritizer/internal/priority"
)

const (
	responseTokens = 256
	defaultTimeout = 60 * time.Second
	warmupText     = "warm up"
)

// messageSender is the slice of the SDK message service the engine needs.
type messageSender interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Options configures an Engine.
type Options struct {
	APIKey  string
	Model   string
	Timeout time.Duration

	// OnUsage, if set, receives token usage for every call.
	OnUsage func(inputTokens, outputTokens int)
}

// Engine classifies text by asking Claude to score each candidate label.
type Engine struct {
	messages messageSender
	model    string
	timeout  time.Duration
	onUsage  func(inputTokens, outputTokens int)
}

// Load creates an Engine and verifies the model answers a warm-up
// classification. Any failure is returned and the Engine is not usable.
func Load(ctx context.Context, opts Options) (*Engine, error) {
	if opts.APIKey == "" {
		return nil, errors.New("claude: api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("claude: model is required")
	}
	// per-call deadlines are set in Classify; the warm-up is bounded by ctx alone
	client := anthropic.NewClient(
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	)
	return load(ctx, &client.Messages, opts)
}

func load(ctx context.Context, sender messageSender, opts Options) (*Engine, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	e := &Engine{
		messages: sender,
		model:    opts.Model,
		timeout:  timeout,
		onUsage:  opts.OnUsage,
	}
	if _, err := e.classify(ctx, warmupText, priority.CandidateLabels(), false); err != nil {
		return nil, fmt.Errorf("load model %s: %w", opts.Model, err)
	}
	return e, nil
}

// Model returns the model identifier the engine was loaded with.
func (e *Engine) Model() string { return e.model }

// Classify implements priority.Engine. Each call is bounded by Options.Timeout.
func (e *Engine) Classify(ctx context.Context, text string, labels []string, multiLabel bool) ([]priority.LabelScore, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.classify(ctx, text, labels, multiLabel)
}

func (e *Engine) classify(ctx context.Context, text string, labels []string, multiLabel bool) ([]priority.LabelScore, error) {
	if len(labels) == 0 {
		return nil, errors.New("claude: no candidate labels")
	}

	msg, err := e.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(e.model),
		MaxTokens:   responseTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: buildSystemPrompt(labels, multiLabel)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(text))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	if e.onUsage != nil {
		e.onUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens))
	}

	return parseScores(responseText(msg), labels)
}

func responseText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// parseScores reads the model's JSON object of label -> score, keeps only the
// requested labels (absent ones score 0) and sorts by descending score with
// ties in candidate order.
func parseScores(reply string, labels []string) ([]priority.LabelScore, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in reply: %q", truncate(reply, 200))
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, fmt.Errorf("unmarshal scores: %w", err)
	}

	out := make([]priority.LabelScore, len(labels))
	var matched int
	for i, l := range labels {
		s, ok := scores[l]
		if ok {
			matched++
		}
		if s < 0 {
			s = 0
		}
		out[i] = priority.LabelScore{Label: l, Score: s}
	}
	if matched == 0 {
		return nil, fmt.Errorf("reply scored none of the candidate labels: %q", truncate(raw, 200))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// extractJSON returns the outermost {...} span of s, which tolerates code
// fences and stray prose around the object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func buildSystemPrompt(labels []string, multiLabel bool) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = fmt.Sprintf("%q", l)
	}

	constraint := "The scores must sum to 1."
	if multiLabel {
		constraint = "Score each label independently."
	}

	return fmt.Sprintf(`You are a zero-shot text classifier for task descriptions.
Score how well the task description matches each of these labels: %s.
Each score is a number between 0 and 1. %s
Reply with a single JSON object mapping every label to its score and nothing else.
Example: {%s: 0.1, ...}`,
		strings.Join(quoted, ", "),
		constraint,
		quoted[0],
	)
}

func buildUserPrompt(text string) string {
	return "Task description:\n" + text
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
