package priority

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

var tracer = otel.Tracer("github.com/linnemanlabs/prioritizer/internal/priority")

// ErrEmptyResult is returned when the engine produced no ranked labels.
var ErrEmptyResult = errors.New("classification engine returned no labels")

// blankScore is reported for blank descriptions, which never reach the engine.
const blankScore = 1.0

// Classifier maps task descriptions to priority tiers using a loaded Engine.
// It holds no per-request state and is safe for concurrent use.
type Classifier struct {
	engine Engine
	model  string
	logger log.Logger
	hooks  Hooks
}

// NewClassifier creates a Classifier around an already loaded engine.
func NewClassifier(engine Engine, model string, logger log.Logger, hooks Hooks) *Classifier {
	if engine == nil {
		panic(xerrors.New("classification engine is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Classifier{
		engine: engine,
		model:  model,
		logger: logger,
		hooks:  hooks,
	}
}

// Model returns the configured model identifier.
func (c *Classifier) Model() string { return c.model }

// Health reports liveness and the configured model. It never touches the engine.
func (c *Classifier) Health() HealthStatus {
	return HealthStatus{Status: "ok", Model: c.model}
}

// Predict classifies a description into a priority tier.
//
// Blank descriptions short-circuit to Medium/"normal"/1.0 without calling the
// engine. Otherwise the top-ranked engine label is mapped through TierFor.
func (c *Classifier) Predict(ctx context.Context, description string) (*Prediction, error) {
	ctx, span := tracer.Start(ctx, "priority.Predict")
	defer span.End()

	id := ulid.Make().String()
	span.SetAttributes(attribute.String("prioritizer.prediction.id", id))

	if strings.TrimSpace(description) == "" {
		p := &Prediction{ID: id, Label: TierMedium, RawLabel: LabelNormal, Score: blankScore}
		c.finish(ctx, span, p, SourceDefault, true)
		return p, nil
	}

	start := time.Now()
	ranked, err := c.engine.Classify(ctx, description, CandidateLabels(), false)
	if c.hooks.OnEngineCall != nil {
		c.hooks.OnEngineCall(c.model, time.Since(start).Seconds(), err)
	}
	if err == nil && len(ranked) == 0 {
		err = ErrEmptyResult
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("classify: %w", err)
	}

	top := ranked[0]
	tier, ok := TierFor(top.Label)
	if !ok {
		c.logger.Warn(ctx, "engine returned label outside candidate set, defaulting tier",
			"prediction_id", id,
			"raw_label", top.Label,
			"score", top.Score,
			"tier", tier,
		)
	}

	p := &Prediction{ID: id, Label: tier, RawLabel: top.Label, Score: top.Score}
	c.finish(ctx, span, p, SourceEngine, ok)
	return p, nil
}

func (c *Classifier) finish(ctx context.Context, span trace.Span, p *Prediction, source Source, mapped bool) {
	span.SetAttributes(
		attribute.String("prioritizer.tier", string(p.Label)),
		attribute.String("prioritizer.raw_label", p.RawLabel),
		attribute.String("prioritizer.source", string(source)),
		attribute.Float64("prioritizer.score", p.Score),
	)

	if c.hooks.OnPredict != nil {
		c.hooks.OnPredict(&PredictEvent{
			Tier:     p.Label,
			RawLabel: p.RawLabel,
			Source:   source,
			Mapped:   mapped,
		})
	}

	c.logger.Info(ctx, "prediction complete",
		"prediction_id", p.ID,
		"tier", p.Label,
		"raw_label", p.RawLabel,
		"score", p.Score,
		"source", source,
	)
}
