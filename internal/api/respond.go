package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"churn-service/internal/inference"
	"churn-service/internal/ml"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Error codes returned in the error envelope.
const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeValidation     = "VALIDATION_ERROR"
	CodeBatchTooLarge  = "BATCH_TOO_LARGE"
	CodeModelConfig    = "MODEL_CONFIGURATION_ERROR"
	CodeTimeout        = "TIMEOUT"
	CodePredictionFail = "PREDICTION_FAILED"
)

// ErrorBody is the error envelope of every non-2xx response.
type ErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	respondJSON(w, status, ErrorBody{Error: APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}

// respondPredictionError maps pipeline errors to HTTP statuses. Client
// input problems are 400; a schema/model mismatch is a server
// misconfiguration and is logged as such.
func respondPredictionError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *inference.ValidationError
		shapeErr *ml.InputShapeError
		batchErr *inference.BatchError
	)
	var details interface{}
	if errors.As(err, &batchErr) {
		details = map[string]int{"index": batchErr.Index}
	}

	switch {
	case errors.As(err, &verr):
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), details)
	case errors.As(err, &shapeErr):
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("configuration anomaly: model and feature schema disagree")
		respondError(w, r, http.StatusInternalServerError, CodeModelConfig, "model is misconfigured", nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondError(w, r, http.StatusServiceUnavailable, CodeTimeout, "prediction timed out", nil)
	default:
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("prediction failed")
		respondError(w, r, http.StatusInternalServerError, CodePredictionFail, "prediction failed", nil)
	}
}
