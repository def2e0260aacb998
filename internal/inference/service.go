// Package inference composes feature engineering, encoding and the
// classifier into the churn scoring pipeline.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"churn-service/internal/common"
	"churn-service/internal/features"
	"churn-service/internal/ml"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the service
type MetricsInterface interface {
	PredictionsInc(label int)
	FailuresInc(reason string)
	LatencyObserve(seconds float64)
	ScoreObserve(p float64)
	ModelAgeSet(seconds float64)
	SinkErrorsInc()
}

// Sink receives every successful prediction, e.g. the prediction log or the
// dashboard live feed. A failing sink never fails the prediction.
type Sink interface {
	Save(ctx context.Context, p Prediction) error
}

// Result is the outcome of scoring one record.
type Result struct {
	ID           string          `json:"id"`
	Probability  float64         `json:"churn_probability"`
	Label        int             `json:"churn_prediction"`
	Threshold    float64         `json:"threshold"`
	ModelVersion string          `json:"model_version,omitempty"`
	Features     features.Record `json:"-"`
	Vector       []float64       `json:"-"`
}

// Prediction is the record handed to sinks.
type Prediction struct {
	ID           string             `json:"id"`
	Timestamp    time.Time          `json:"timestamp"`
	Input        features.RawRecord `json:"input"`
	Probability  float64            `json:"churn_probability"`
	Label        int                `json:"churn_prediction"`
	Threshold    float64            `json:"threshold"`
	ModelVersion string             `json:"model_version,omitempty"`
}

// ModelInfo describes the model being served.
type ModelInfo struct {
	Type       string    `json:"type"`
	Version    string    `json:"version"`
	TrainedAt  time.Time `json:"trained_at"`
	LoadedAt   time.Time `json:"loaded_at"`
	Threshold  float64   `json:"threshold"`
	Width      int       `json:"n_features"`
	Columns    []string  `json:"columns"`
	Explicable bool      `json:"explicable"`
}

// Service scores customer records. It holds only immutable state and is
// safe for concurrent use.
type Service struct {
	model     *ml.Model
	encoder   *features.Encoder
	fallback  map[string]float64
	threshold float64
	metrics   MetricsInterface
	sinks     []Sink
	now       func() time.Time
}

// New creates a service around a loaded model. metrics may be nil. When
// metrics also implements features.UnknownCategoryObserver, unknown
// categories are counted.
func New(model *ml.Model, threshold float64, metrics MetricsInterface, sinks ...Sink) (*Service, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0, 1], got %v", threshold)
	}

	var observer features.UnknownCategoryObserver
	if o, ok := metrics.(features.UnknownCategoryObserver); ok {
		observer = o
	}

	return &Service{
		model:     model,
		encoder:   features.NewEncoder(model.Schema(), observer),
		fallback:  model.Schema().Imputation(),
		threshold: threshold,
		metrics:   metrics,
		sinks:     sinks,
		now:       time.Now,
	}, nil
}

// Threshold returns the decision threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// Label applies the closed decision bound: 1 iff p >= threshold.
func Label(p, threshold float64) int {
	if p >= threshold {
		return 1
	}
	return 0
}

// Infer scores one record: engineer, encode, score, threshold. The raw
// record is not modified.
func (s *Service) Infer(ctx context.Context, raw features.RawRecord) (Result, error) {
	results, err := s.infer(ctx, []features.RawRecord{raw})
	if err != nil {
		var be *BatchError
		if errors.As(err, &be) {
			return Result{}, be.Err
		}
		return Result{}, err
	}
	return results[0], nil
}

// InferBatch scores records together, imputing missing numeric values with
// the batch median. Either every record is scored or an error is returned.
func (s *Service) InferBatch(ctx context.Context, raws []features.RawRecord) ([]Result, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	return s.infer(ctx, raws)
}

func (s *Service) infer(ctx context.Context, raws []features.RawRecord) ([]Result, error) {
	start := s.now()
	if err := ctx.Err(); err != nil {
		s.fail(ReasonCanceled)
		return nil, err
	}

	for i, raw := range raws {
		if err := Validate(raw); err != nil {
			s.fail(ReasonValidation)
			return nil, &BatchError{Index: i, Err: err}
		}
	}

	recs := features.EngineerBatch(raws, s.fallback)
	results := make([]Result, len(recs))
	version := s.model.Metadata().Version

	for i, rec := range recs {
		vec, err := s.encoder.Encode(rec)
		if err != nil {
			s.fail(ReasonEncoding)
			return nil, &BatchError{Index: i, Err: err}
		}

		p, err := s.model.Score(vec)
		if err != nil {
			var shapeErr *ml.InputShapeError
			if errors.As(err, &shapeErr) {
				s.fail(ReasonShape)
				log.Error().Err(err).
					Int("expected", shapeErr.Expected).
					Int("got", shapeErr.Got).
					Msg("encoded vector does not match classifier; schema and model artifacts have drifted")
			} else {
				s.fail(ReasonScore)
			}
			return nil, &BatchError{Index: i, Err: err}
		}

		results[i] = Result{
			ID:           uuid.NewString(),
			Probability:  p,
			Label:        Label(p, s.threshold),
			Threshold:    s.threshold,
			ModelVersion: version,
			Features:     rec,
			Vector:       vec,
		}
	}

	elapsed := s.now().Sub(start)
	for i, res := range results {
		s.observe(res, elapsed)
		s.publish(ctx, raws[i], res, start)
	}
	return results, nil
}

// Explain returns the top columns driving a result's score, or false when
// the model cannot attribute its score.
func (s *Service) Explain(res Result, top int) ([]ml.Contribution, bool, error) {
	return s.model.Explain(res.Vector, top)
}

// Info describes the served model.
func (s *Service) Info() ModelInfo {
	md := s.model.Metadata()
	return ModelInfo{
		Type:       md.Type,
		Version:    md.Version,
		TrainedAt:  md.TrainedAt,
		LoadedAt:   md.LoadedAt,
		Threshold:  s.threshold,
		Width:      s.model.Schema().Width(),
		Columns:    s.model.Schema().Columns(),
		Explicable: s.model.Explicable(),
	}
}

func (s *Service) observe(res Result, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.PredictionsInc(res.Label)
	s.metrics.ScoreObserve(res.Probability)
	s.metrics.LatencyObserve(elapsed.Seconds())
	s.metrics.ModelAgeSet(s.model.Age().Seconds())
}

func (s *Service) fail(reason string) {
	if s.metrics != nil {
		s.metrics.FailuresInc(reason)
	}
}

func (s *Service) publish(ctx context.Context, raw features.RawRecord, res Result, at time.Time) {
	if len(s.sinks) == 0 {
		return
	}
	p := Prediction{
		ID:           res.ID,
		Timestamp:    at.UTC(),
		Input:        raw.Normalize(),
		Probability:  res.Probability,
		Label:        res.Label,
		Threshold:    res.Threshold,
		ModelVersion: res.ModelVersion,
	}
	for _, sink := range s.sinks {
		if err := sink.Save(ctx, p); err != nil {
			log.Warn().Err(err).Str("id", p.ID).Msg("failed to record prediction")
			if s.metrics != nil {
				s.metrics.SinkErrorsInc()
			}
		}
	}
}

// Validate checks that a record can be scored. Every required field must
// be present, a numeric value that parses must not be negative and a
// categorical string must not be blank. Nulls and unparseable numbers are
// left to imputation.
func Validate(raw features.RawRecord) error {
	rec := raw.Normalize()
	for _, field := range common.RequiredFields {
		if _, ok := rec[field]; !ok {
			return &ValidationError{Field: field, Reason: "is required"}
		}
	}
	for _, field := range common.NumericFields {
		if f, ok := rec[field].Float(); ok && f < 0 {
			return &ValidationError{Field: field, Reason: "must not be negative"}
		}
	}
	for _, field := range rec.Fields() {
		v := rec[field]
		if v.IsString() && strings.TrimSpace(v.Str) == "" && !numericFields[field] {
			return &ValidationError{Field: field, Reason: "must not be empty"}
		}
	}
	return nil
}

var numericFields = func() map[string]bool {
	set := make(map[string]bool, len(common.NumericFields))
	for _, f := range common.NumericFields {
		set[f] = true
	}
	return set
}()
