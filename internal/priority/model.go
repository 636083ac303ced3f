package priority

// Tier is the three-valued priority category returned to callers.
type Tier string

const (
	// TierHigh is derived from the "urgent" candidate label
	TierHigh Tier = "High"

	// TierMedium is derived from the "normal" candidate label, and is the default
	TierMedium Tier = "Medium"

	// TierLow is derived from the "low priority" candidate label
	TierLow Tier = "Low"
)

// Candidate labels handed to the classification engine on every request.
const (
	LabelUrgent = "urgent"
	LabelNormal = "normal"
	LabelLow    = "low priority"
)

// DefaultModel is the zero-shot model loaded when none is configured.
const DefaultModel = "typeform/distilbert-base-uncased-mnli"

var candidateLabels = [...]string{LabelUrgent, LabelNormal, LabelLow}

// CandidateLabels returns the fixed, ordered candidate label set. The slice is
// a fresh copy on every call.
func CandidateLabels() []string {
	out := make([]string, len(candidateLabels))
	copy(out, candidateLabels[:])
	return out
}

// TierFor maps a raw engine label to its tier. It is total: labels outside the
// candidate set map to TierMedium with ok=false.
func TierFor(rawLabel string) (tier Tier, ok bool) {
	switch rawLabel {
	case LabelUrgent:
		return TierHigh, true
	case LabelNormal:
		return TierMedium, true
	case LabelLow:
		return TierLow, true
	default:
		return TierMedium, false
	}
}

// LabelScore is one entry of an engine's ranked output.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Prediction is the outcome of a single classification.
type Prediction struct {
	ID       string  `json:"-"`
	Label    Tier    `json:"label"`
	RawLabel string  `json:"raw_label"`
	Score    float64 `json:"score"`
}

// HealthStatus reports liveness plus the configured model identifier.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}
