package predictapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// predictRequest is the /predict body. Description is a pointer so a missing
// or null field fails validation while "" and whitespace stay valid input.
type predictRequest struct {
	Description *string `json:"description" validate:"required"`
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, status, details := decodePredictRequest(r.Body)
	if status != 0 {
		msg := "validation failed"
		switch status {
		case http.StatusBadRequest:
			msg = "invalid payload"
		case http.StatusRequestEntityTooLarge:
			msg = "payload too large"
		}
		writeJSON(w, status, errorBody{Error: msg, Details: details})
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("prioritizer.description.length", len(*req.Description)))

	p, err := a.svc.Predict(r.Context(), *req.Description)
	if err != nil {
		a.logger.Error(r.Context(), err, "prediction failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	span.SetAttributes(
		attribute.String("prioritizer.prediction.id", p.ID),
		attribute.String("prioritizer.tier", string(p.Label)),
	)

	if p.ID != "" {
		w.Header().Set(PredictionIDHeader, p.ID)
	}
	writeJSON(w, http.StatusOK, p)
}

// decodePredictRequest parses and validates the body. A zero status means the
// request is valid; otherwise status is 400 for unparseable JSON, 413 when the
// body exceeds the server limit and 422 for a well-formed body that does not
// match the schema.
func decodePredictRequest(body io.Reader) (*predictRequest, int, []string) {
	var req predictRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, nil
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "body"
			}
			return nil, http.StatusUnprocessableEntity, []string{
				fmt.Sprintf("%s: expected %s, got %s", field, typeErr.Type, typeErr.Value),
			}
		}
		return nil, http.StatusBadRequest, nil
	}

	// exactly one JSON value per body
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, nil
		}
		return nil, http.StatusBadRequest, nil
	}

	if err := validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, http.StatusUnprocessableEntity, []string{err.Error()}
		}
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
		}
		return nil, http.StatusUnprocessableEntity, details
	}
	return &req, 0, nil
}
