package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"churn-service/internal/features"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.predictor.Info())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.predictor.Infer(r.Context(), req.RawRecord())
	if err != nil {
		respondPredictionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toResponse(res))
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.opts.MaxBatchSize > 0 && len(req.Records) > s.opts.MaxBatchSize {
		respondError(w, r, http.StatusRequestEntityTooLarge, CodeBatchTooLarge,
			fmt.Sprintf("batch of %d records exceeds the limit of %d", len(req.Records), s.opts.MaxBatchSize), nil)
		return
	}

	raws := make([]features.RawRecord, len(req.Records))
	for i, rec := range req.Records {
		raws[i] = rec.RawRecord()
	}

	results, err := s.predictor.InferBatch(r.Context(), raws)
	if err != nil {
		respondPredictionError(w, r, err)
		return
	}

	resp := BatchResponse{Predictions: make([]PredictResponse, len(results)), Count: len(results)}
	for i, res := range results {
		resp.Predictions[i] = toResponse(res)
	}
	respondJSON(w, http.StatusOK, resp)
}

// decode reads and validates a JSON body, writing the error response
// itself when it returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, err.Error(), nil)
		return false
	}
	if err := validateStruct(dst); err != nil {
		var verr *RequestValidationError
		errors.As(err, &verr)
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), verr.Fields)
		return false
	}
	return true
}
