package priority

import "context"

// Engine is the contract consumed from a zero-shot classification backend.
//
// Classify scores text against labels and returns one entry per label, sorted
// by descending score. Implementations must be safe for concurrent use.
type Engine interface {
	Classify(ctx context.Context, text string, labels []string, multiLabel bool) ([]LabelScore, error)
}

// EngineFunc adapts a plain function to Engine.
type EngineFunc func(ctx context.Context, text string, labels []string, multiLabel bool) ([]LabelScore, error)

// Classify implements Engine.
func (f EngineFunc) Classify(ctx context.Context, text string, labels []string, multiLabel bool) ([]LabelScore, error) {
	return f(ctx, text, labels, multiLabel)
}

// Source records how a prediction was produced.
type Source string

const (
	// SourceEngine means the classification engine produced the label
	SourceEngine Source = "engine"

	// SourceDefault means the blank-input default was returned without calling the engine
	SourceDefault Source = "default"
)

// PredictEvent carries the details of a finished prediction for hooks.
type PredictEvent struct {
	Tier     Tier
	RawLabel string
	Source   Source
	Mapped   bool
}

// Hooks are optional callbacks invoked by the Classifier. Nil fields are skipped.
type Hooks struct {
	OnEngineCall func(model string, duration float64, err error)
	OnPredict    func(e *PredictEvent)
}
