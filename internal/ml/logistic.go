package ml

import (
	"encoding/json"
	"fmt"
)

const typeLogistic = "logistic_regression"

// Logistic is a fitted logistic regression: p = sigmoid(intercept + w·x).
type Logistic struct {
	coefficients []float64
	intercept    float64
}

type logisticParams struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// NewLogistic copies the coefficients into a new classifier.
func NewLogistic(coefficients []float64, intercept float64) (*Logistic, error) {
	if len(coefficients) == 0 {
		return nil, fmt.Errorf("%w: logistic regression has no coefficients", ErrArtifact)
	}
	for i, w := range coefficients {
		if !isFinite(w) {
			return nil, fmt.Errorf("%w: coefficient %d is not finite", ErrArtifact, i)
		}
	}
	if !isFinite(intercept) {
		return nil, fmt.Errorf("%w: intercept is not finite", ErrArtifact)
	}
	w := make([]float64, len(coefficients))
	copy(w, coefficients)
	return &Logistic{coefficients: w, intercept: intercept}, nil
}

func decodeLogistic(raw json.RawMessage) (Classifier, error) {
	var p logisticParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decode logistic regression: %v", ErrArtifact, err)
	}
	return NewLogistic(p.Coefficients, p.Intercept)
}

func (l *Logistic) Type() string    { return typeLogistic }
func (l *Logistic) InputWidth() int { return len(l.coefficients) }

func (l *Logistic) Score(x []float64) (float64, error) {
	if err := checkShape(l, x); err != nil {
		return 0, err
	}
	return sigmoid(l.decision(x)), nil
}

// Contributions returns w_i * x_i for every column, in schema order.
func (l *Logistic) Contributions(x []float64) ([]float64, error) {
	if err := checkShape(l, x); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, w := range l.coefficients {
		out[i] = w * x[i]
	}
	return out, nil
}

func (l *Logistic) decision(x []float64) float64 {
	z := l.intercept
	for i, w := range l.coefficients {
		z += w * x[i]
	}
	return z
}
