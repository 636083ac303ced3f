// Package huggingface implements priority.Engine against a Hugging Face
// zero-shot-classification inference endpoint.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/prioritizer/internal/priority"
)

const (
	// DefaultEndpoint is the hosted inference router.
	DefaultEndpoint = "https://router.huggingface.co/hf-inference"

	defaultTimeout = 60 * time.Second
	maxErrBody     = 512

	// warmupText is classified once during Load to force the model resident.
	warmupText = "warm up"
)

// Options configures an Engine.
type Options struct {
	Endpoint string
	Model    string
	Token    string

	// Timeout bounds each Classify call. Load is bounded only by its context.
	Timeout time.Duration

	// HTTPClient overrides the default instrumented client (tests).
	HTTPClient *http.Client
}

// Engine classifies text with a hosted zero-shot model. It is immutable after
// Load and safe for concurrent use.
type Engine struct {
	url        string
	token      string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// request is the zero-shot inference payload.
type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

// pipelineResponse is the classic transformers pipeline shape.
type pipelineResponse struct {
	Sequence string    `json:"sequence"`
	Labels   []string  `json:"labels"`
	Scores   []float64 `json:"scores"`
}

type errorResponse struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}

// Load builds an Engine and runs one blocking warm-up classification so the
// model is resident before traffic arrives. Any failure is returned and the
// Engine is not usable.
func Load(ctx context.Context, opts Options) (*Engine, error) {
	e, err := newEngine(opts)
	if err != nil {
		return nil, err
	}

	if _, err := e.classify(ctx, warmupText, priority.CandidateLabels(), false, true); err != nil {
		return nil, fmt.Errorf("load model %s: %w", e.model, err)
	}
	return e, nil
}

func newEngine(opts Options) (*Engine, error) {
	if opts.Model == "" {
		return nil, errors.New("huggingface: model is required")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("huggingface: invalid endpoint %q", endpoint)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// no Client.Timeout: deadlines come from the request context
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Engine{
		url:        base.String() + "/models/" + opts.Model,
		token:      opts.Token,
		model:      opts.Model,
		timeout:    timeout,
		httpClient: client,
	}, nil
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
	return e.classify(ctx, text, labels, multiLabel, false)
}

func (e *Engine) classify(ctx context.Context, text string, labels []string, multiLabel, waitForModel bool) ([]priority.LabelScore, error) {
	body, err := json.Marshal(request{
		Inputs: text,
		Parameters: parameters{
			CandidateLabels: labels,
			MultiLabel:      multiLabel,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	if waitForModel {
		req.Header.Set("X-Wait-For-Model", "true")
	}

	resp, err := e.httpClient.Do(req) //nolint:gosec // G704: url is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, respBody)
	}

	ranked, err := decodeRanking(respBody)
	if err != nil {
		return nil, err
	}
	return restrict(ranked, labels), nil
}

// decodeRanking accepts both the pipeline object shape and the list-of-pairs
// shape the hosted router returns.
func decodeRanking(body []byte) ([]priority.LabelScore, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	if trimmed[0] == '[' {
		var pairs []priority.LabelScore
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		return pairs, nil
	}

	var pr pipelineResponse
	if err := json.Unmarshal(trimmed, &pr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(pr.Labels) != len(pr.Scores) {
		return nil, fmt.Errorf("malformed response: %d labels, %d scores", len(pr.Labels), len(pr.Scores))
	}
	out := make([]priority.LabelScore, len(pr.Labels))
	for i := range pr.Labels {
		out[i] = priority.LabelScore{Label: pr.Labels[i], Score: pr.Scores[i]}
	}
	return out, nil
}

// restrict dedups the ranking and sorts it by descending score, ties broken by
// candidate order. Labels that were never asked for are kept so an unexpected
// top label still reaches the caller.
func restrict(ranked []priority.LabelScore, labels []string) []priority.LabelScore {
	order := make(map[string]int, len(labels))
	for i, l := range labels {
		order[l] = i
	}

	seen := make(map[string]bool, len(ranked))
	out := make([]priority.LabelScore, 0, len(ranked))
	for _, r := range ranked {
		if seen[r.Label] {
			continue
		}
		seen[r.Label] = true
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		oi, iok := order[out[i].Label]
		oj, jok := order[out[j].Label]
		if iok && jok {
			return oi < oj
		}
		return iok && !jok
	})
	return out
}

func statusError(code int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		if er.EstimatedTime > 0 {
			return fmt.Errorf("huggingface api error %d: %s (estimated_time=%.0fs)", code, er.Error, er.EstimatedTime)
		}
		return fmt.Errorf("huggingface api error %d: %s", code, er.Error)
	}
	return fmt.Errorf("huggingface api error %d: %s", code, truncate(string(body), maxErrBody))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
