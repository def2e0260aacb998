// Package ml wraps pre-trained binary churn classifiers loaded from static
// artifacts. A loaded Model is immutable: it is built once at startup and
// shared read-only by every request.
//
// Two classifier families are supported, logistic regression and gradient
// boosted regression trees, both emitting the probability of the positive
// (churn) class.
package ml

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrArtifact marks a model or schema artifact that cannot be loaded.
	ErrArtifact = errors.New("invalid model artifact")
	// ErrSchemaMismatch marks a model and schema from different training runs.
	ErrSchemaMismatch = errors.New("model and schema artifacts disagree")
	// ErrInvalidScore marks a classifier output outside [0, 1].
	ErrInvalidScore = errors.New("classifier produced invalid probability")
)

// Classifier scores one encoded feature vector.
type Classifier interface {
	// Score returns the probability of the positive class.
	Score(x []float64) (float64, error)
	// InputWidth is the number of features the classifier expects.
	InputWidth() int
	// Type names the classifier family, as written in the artifact.
	Type() string
}

// Explainer is implemented by classifiers that can attribute a score to
// individual input columns.
type Explainer interface {
	Contributions(x []float64) ([]float64, error)
}

// InputShapeError reports a vector whose width differs from the classifier
// input width. It indicates drift between the schema and the model.
type InputShapeError struct {
	Expected int
	Got      int
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("input shape mismatch: classifier expects %d features, got %d", e.Expected, e.Got)
}

func checkShape(c Classifier, x []float64) error {
	if len(x) != c.InputWidth() {
		return &InputShapeError{Expected: c.InputWidth(), Got: len(x)}
	}
	return nil
}

// sigmoid is the numerically stable logistic function.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
