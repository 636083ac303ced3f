package predictapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/prioritizer/internal/priority"
)

// PredictionIDHeader carries the per-prediction ULID on /predict responses.
const PredictionIDHeader = "X-Prediction-Id"

// Classifier defines the business operations predictapi needs.
type Classifier interface {
	Predict(ctx context.Context, description string) (*priority.Prediction, error)
	Health() priority.HealthStatus
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    Classifier
}

// New creates a new API handler.
func New(logger log.Logger, svc Classifier) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("classifier is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/health", a.handleHealth)
	r.Post("/predict", a.handlePredict)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Health())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}
