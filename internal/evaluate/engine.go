// Package evaluate scores a set of customers offline and measures the
// model against the observed outcomes, or against the probabilities it
// logged when the customers were first scored.
package evaluate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"churn-service/internal/features"
	"churn-service/internal/inference"

	"github.com/rs/zerolog/log"
)

// DefaultBatchSize is the number of examples scored together.
const DefaultBatchSize = 500

// Scorer is the part of inference.Service the engine uses.
type Scorer interface {
	InferBatch(ctx context.Context, raws []features.RawRecord) ([]inference.Result, error)
	Threshold() float64
}

// Row is the outcome for one example.
type Row struct {
	Index       int      `json:"index"`
	Probability float64  `json:"churn_probability"`
	Prediction  int      `json:"churn_prediction"`
	Actual      *int     `json:"actual,omitempty"`
	Previous    *float64 `json:"previous_probability,omitempty"`
}

// Results holds evaluation results
type Results struct {
	Rows      []Row     `json:"rows"`
	Threshold float64   `json:"threshold"`
	Total     int       `json:"total"`
	Scored    int       `json:"scored"`
	Skipped   int       `json:"skipped"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	MeanProbability float64 `json:"mean_probability"`
	PredictedChurn  int     `json:"predicted_churn"`

	// Classification metrics over the labelled rows.
	Labelled       int     `json:"labelled"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	TrueNegatives  int     `json:"true_negatives"`
	FalseNegatives int     `json:"false_negatives"`
	Accuracy       float64 `json:"accuracy"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
	AUC            float64 `json:"auc"`
	LogLoss        float64 `json:"log_loss"`

	// Replay metrics over rows that carry a logged probability.
	Replayed      int     `json:"replayed"`
	MeanAbsDelta  float64 `json:"mean_abs_delta"`
	MaxAbsDelta   float64 `json:"max_abs_delta"`
	ChangedLabels int     `json:"changed_labels"`
}

// Engine runs an evaluation
type Engine struct {
	scorer    Scorer
	data      *DataLoader
	batchSize int
	results   *Results
}

// NewEngine creates a new evaluation engine
func NewEngine(scorer Scorer, data *DataLoader, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{
		scorer:    scorer,
		data:      data,
		batchSize: batchSize,
		results: &Results{
			Rows:      make([]Row, 0, data.GetDataCount()),
			Threshold: scorer.Threshold(),
		},
	}
}

// Run scores every example. Examples that fail validation are skipped and
// counted; any other scoring error aborts the run.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().
		Int("examples", e.data.GetDataCount()).
		Int("batch_size", e.batchSize).
		Msg("Starting evaluation")

	e.results.StartTime = time.Now()
	index := 0
	for e.data.HasNext() {
		chunk := e.data.Next(e.batchSize)

		valid := make([]Example, 0, len(chunk))
		positions := make([]int, 0, len(chunk))
		for i, ex := range chunk {
			if err := inference.Validate(ex.Record); err != nil {
				log.Warn().Err(err).Int("index", index+i).Msg("skipping invalid example")
				e.results.Skipped++
				continue
			}
			valid = append(valid, ex)
			positions = append(positions, index+i)
		}
		index += len(chunk)

		if len(valid) == 0 {
			continue
		}

		raws := make([]features.RawRecord, len(valid))
		for i, ex := range valid {
			raws[i] = ex.Record
		}
		scored, err := e.scorer.InferBatch(ctx, raws)
		if err != nil {
			return fmt.Errorf("scoring examples %d-%d: %w", positions[0], positions[len(positions)-1], err)
		}

		for i, res := range scored {
			row := Row{
				Index:       positions[i],
				Probability: res.Probability,
				Prediction:  res.Label,
			}
			if valid[i].HasLabel {
				actual := valid[i].Actual
				row.Actual = &actual
			}
			if valid[i].HasPrevious {
				prev := valid[i].Previous
				row.Previous = &prev
			}
			e.results.Rows = append(e.results.Rows, row)
		}

		log.Debug().Float64("progress", e.data.GetProgress()).Msg("evaluation progress")
	}
	e.results.EndTime = time.Now()
	e.results.Total = e.data.GetDataCount()

	e.calculateMetrics()
	return nil
}

// calculateMetrics calculates the final metrics
func (e *Engine) calculateMetrics() {
	r := e.results
	r.Scored = len(r.Rows)
	if r.Scored == 0 {
		return
	}

	var sumP, sumDelta, sumLoss float64
	var labelled []Row
	for _, row := range r.Rows {
		sumP += row.Probability
		if row.Prediction == 1 {
			r.PredictedChurn++
		}

		if row.Actual != nil {
			labelled = append(labelled, row)
			sumLoss += logLoss(row.Probability, *row.Actual)
			switch {
			case row.Prediction == 1 && *row.Actual == 1:
				r.TruePositives++
			case row.Prediction == 1:
				r.FalsePositives++
			case *row.Actual == 1:
				r.FalseNegatives++
			default:
				r.TrueNegatives++
			}
		}

		if row.Previous != nil {
			r.Replayed++
			delta := math.Abs(row.Probability - *row.Previous)
			sumDelta += delta
			if delta > r.MaxAbsDelta {
				r.MaxAbsDelta = delta
			}
			if inference.Label(*row.Previous, r.Threshold) != row.Prediction {
				r.ChangedLabels++
			}
		}
	}
	r.MeanProbability = sumP / float64(r.Scored)

	if r.Replayed > 0 {
		r.MeanAbsDelta = sumDelta / float64(r.Replayed)
	}

	r.Labelled = len(labelled)
	if r.Labelled == 0 {
		return
	}
	r.Accuracy = float64(r.TruePositives+r.TrueNegatives) / float64(r.Labelled)
	r.Precision = ratio(r.TruePositives, r.TruePositives+r.FalsePositives)
	r.Recall = ratio(r.TruePositives, r.TruePositives+r.FalseNegatives)
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	r.LogLoss = sumLoss / float64(r.Labelled)
	r.AUC = calculateAUC(labelled)
}

// calculateAUC is the Mann-Whitney estimate of the ROC AUC, with tied
// scores given their average rank. It is 0 when only one class is present.
func calculateAUC(rows []Row) float64 {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Probability < sorted[j].Probability
	})

	var positives, negatives int
	var positiveRanks float64
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j].Probability == sorted[i].Probability {
			j++
		}
		rank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if *sorted[k].Actual == 1 {
				positives++
				positiveRanks += rank
			} else {
				negatives++
			}
		}
		i = j
	}

	if positives == 0 || negatives == 0 {
		return 0
	}
	p, n := float64(positives), float64(negatives)
	return (positiveRanks - p*(p+1)/2) / (p * n)
}

func logLoss(p float64, actual int) float64 {
	const eps = 1e-15
	p = math.Min(math.Max(p, eps), 1-eps)
	if actual == 1 {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// GetResults returns the evaluation results
func (e *Engine) GetResults() *Results {
	return e.results
}
