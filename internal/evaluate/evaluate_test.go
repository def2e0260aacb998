package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"churn-service/internal/common"
	"churn-service/internal/features"
	"churn-service/internal/inference"
	"churn-service/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customersCSV = `Tenure Months,Monthly Charges,Total Charges,Contract,Payment Method,Internet Service,Tech Support,Churn Label
10,80,500,Month-to-month,Electronic check,Fiber optic,No,Yes
60,20,1200,Two year,Mailed check,No,,No
 ,70, ,One year,Bank transfer (automatic),DSL,Yes,No
5,-1,20,Month-to-month,Electronic check,Fiber optic,No,Yes
`

// stubScorer returns the value of the "Score" field as the probability.
type stubScorer struct {
	threshold float64
	err       error
	calls     int
}

func (s *stubScorer) Threshold() float64 { return s.threshold }

func (s *stubScorer) InferBatch(_ context.Context, raws []features.RawRecord) ([]inference.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]inference.Result, len(raws))
	for i, raw := range raws {
		p, _ := raw["Score"].Float()
		out[i] = inference.Result{Probability: p, Label: inference.Label(p, s.threshold), Threshold: s.threshold}
	}
	return out, nil
}

type fakeLog struct {
	preds      []inference.Prediction
	start, end time.Time
}

func (f *fakeLog) Range(start, end time.Time) ([]inference.Prediction, error) {
	f.start, f.end = start, end
	return f.preds, nil
}

func scored(p float64, actual int) Example {
	return Example{
		Record: features.RawRecord{
			common.FieldTenureMonths:    features.Number(1),
			common.FieldMonthlyCharges:  features.Number(1),
			common.FieldTotalCharges:    features.Number(1),
			common.FieldContract:        features.String("Month-to-month"),
			common.FieldPaymentMethod:   features.String("Mailed check"),
			common.FieldInternetService: features.String("DSL"),
			"Score":                     features.Number(p),
		},
		Actual:   actual,
		HasLabel: true,
	}
}

func TestReadCSV(t *testing.T) {
	dl := NewDataLoader()
	require.NoError(t, dl.ReadCSV(strings.NewReader(customersCSV)))
	require.Equal(t, 4, dl.GetDataCount())

	batch := dl.Next(0)
	require.Len(t, batch, 4)

	first := batch[0]
	assert.True(t, first.HasLabel)
	assert.Equal(t, 1, first.Actual)
	_, hasLabel := first.Record[ColumnChurnLabel]
	assert.False(t, hasLabel, "label column must not reach the model")
	assert.Equal(t, "80", first.Record[common.FieldMonthlyCharges].Text())

	assert.Equal(t, 0, batch[1].Actual)
	assert.True(t, batch[1].Record[common.FieldTechSupport].IsNull(), "empty cell is null")
	assert.True(t, batch[2].Record[common.FieldTenureMonths].IsNull())
	assert.False(t, dl.HasNext())
	assert.Equal(t, 100.0, dl.GetProgress())
}

func TestReadCSV_InvalidLabel(t *testing.T) {
	dl := NewDataLoader()
	err := dl.ReadCSV(strings.NewReader("Contract,Churn Value\nOne year,maybe\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadJSON(t *testing.T) {
	tests := map[string]string{
		"array": `[{"Contract":"One year","Churn Value":1},{"Contract":"Two year","Churn":"No"}]`,
		"lines": "{\"Contract\":\"One year\",\"Churn Value\":1}\n{\"Contract\":\"Two year\",\"Churn\":\"No\"}\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			dl := NewDataLoader()
			require.NoError(t, dl.ReadJSON(strings.NewReader(body)))
			batch := dl.Next(10)
			require.Len(t, batch, 2)
			assert.Equal(t, 1, batch[0].Actual)
			assert.True(t, batch[1].HasLabel)
			assert.Equal(t, 0, batch[1].Actual)
			assert.Equal(t, "Two year", batch[1].Record[common.FieldContract].Text())
		})
	}
}

func TestLoadFromStore(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeLog{preds: []inference.Prediction{
		{ID: "a", Probability: 0.7, Input: features.RawRecord{common.FieldContract: features.String("One year")}},
	}}

	dl := NewDataLoader()
	require.NoError(t, dl.LoadFromStore(store, now.Add(-time.Hour), now))
	assert.Equal(t, now.Add(-time.Hour), store.start)

	batch := dl.Next(1)
	require.Len(t, batch, 1)
	assert.True(t, batch[0].HasPrevious)
	assert.Equal(t, 0.7, batch[0].Previous)
	assert.False(t, batch[0].HasLabel)
}

func TestNext_Chunks(t *testing.T) {
	dl := NewDataLoader()
	for i := 0; i < 5; i++ {
		dl.data = append(dl.data, scored(0.5, 0))
	}
	assert.Len(t, dl.Next(2), 2)
	assert.Equal(t, 40.0, dl.GetProgress())
	assert.Len(t, dl.Next(2), 2)
	assert.Len(t, dl.Next(2), 1)
	assert.Nil(t, dl.Next(2))

	dl.Reset()
	assert.True(t, dl.HasNext())
}

func TestEngine_Metrics(t *testing.T) {
	dl := NewDataLoader()
	dl.data = []Example{
		scored(0.9, 1), // TP
		scored(0.6, 0), // FP
		scored(0.2, 1), // FN
		scored(0.1, 0), // TN
		scored(0.8, 1), // TP
	}
	scorer := &stubScorer{threshold: 0.5}

	e := NewEngine(scorer, dl, 2)
	require.NoError(t, e.Run(context.Background()))
	res := e.GetResults()

	assert.Equal(t, 3, scorer.calls)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 5, res.Scored)
	assert.Equal(t, 5, res.Labelled)
	assert.Equal(t, 2, res.TruePositives)
	assert.Equal(t, 1, res.FalsePositives)
	assert.Equal(t, 1, res.FalseNegatives)
	assert.Equal(t, 1, res.TrueNegatives)
	assert.InDelta(t, 0.6, res.Accuracy, 1e-12)
	assert.InDelta(t, 2.0/3, res.Precision, 1e-12)
	assert.InDelta(t, 2.0/3, res.Recall, 1e-12)
	assert.InDelta(t, 2.0/3, res.F1, 1e-12)
	// positives 0.9, 0.8, 0.2 against negatives 0.6, 0.1: 5 of 6 pairs ordered
	assert.InDelta(t, 5.0/6, res.AUC, 1e-12)
	assert.InDelta(t, 0.52, res.MeanProbability, 1e-12)
	assert.Equal(t, 3, res.PredictedChurn)
	assert.Greater(t, res.LogLoss, 0.0)

	for i, row := range res.Rows {
		assert.Equal(t, i, row.Index)
	}
}

func TestEngine_SkipsInvalid(t *testing.T) {
	dl := NewDataLoader()
	invalid := scored(0.9, 1)
	delete(invalid.Record, common.FieldContract)
	dl.data = []Example{scored(0.3, 0), invalid, scored(0.7, 1)}

	e := NewEngine(&stubScorer{threshold: 0.5}, dl, 10)
	require.NoError(t, e.Run(context.Background()))
	res := e.GetResults()

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Scored)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 2, res.Rows[1].Index)
	assert.Equal(t, 1.0, res.AUC)
}

func TestEngine_ScoringErrorAborts(t *testing.T) {
	dl := NewDataLoader()
	dl.data = []Example{scored(0.3, 0)}
	boom := errors.New("boom")

	e := NewEngine(&stubScorer{threshold: 0.5, err: boom}, dl, 10)
	err := e.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestEngine_Replay(t *testing.T) {
	dl := NewDataLoader()
	a, b := scored(0.45, 0), scored(0.9, 0)
	a.HasLabel, b.HasLabel = false, false
	a.Previous, a.HasPrevious = 0.55, true
	b.Previous, b.HasPrevious = 0.9, true
	dl.data = []Example{a, b}

	e := NewEngine(&stubScorer{threshold: 0.5}, dl, 0)
	require.NoError(t, e.Run(context.Background()))
	res := e.GetResults()

	assert.Equal(t, 0, res.Labelled)
	assert.Equal(t, 2, res.Replayed)
	assert.InDelta(t, 0.05, res.MeanAbsDelta, 1e-12)
	assert.InDelta(t, 0.1, res.MaxAbsDelta, 1e-12)
	assert.Equal(t, 1, res.ChangedLabels)
}

func TestCalculateAUC_Ties(t *testing.T) {
	one, zero := 1, 0
	rows := []Row{
		{Probability: 0.5, Actual: &one},
		{Probability: 0.5, Actual: &zero},
	}
	assert.Equal(t, 0.5, calculateAUC(rows))
	assert.Equal(t, 0.0, calculateAUC(rows[:1]))
}

func TestEvaluate_WithModel(t *testing.T) {
	model, err := ml.LoadArtifacts(
		filepath.Join("..", "..", "models", "churn_model.json"),
		filepath.Join("..", "..", "models", "features.json"),
	)
	require.NoError(t, err)
	svc, err := inference.New(model, common.DefaultThreshold, nil)
	require.NoError(t, err)

	dl := NewDataLoader()
	require.NoError(t, dl.ReadCSV(strings.NewReader(customersCSV)))

	e := NewEngine(svc, dl, 0)
	require.NoError(t, e.Run(context.Background()))
	res := e.GetResults()

	// the negative monthly charge is rejected, the blank tenure is imputed
	assert.Equal(t, 3, res.Scored)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, res.Labelled)
	for _, row := range res.Rows {
		assert.GreaterOrEqual(t, row.Probability, 0.0)
		assert.LessOrEqual(t, row.Probability, 1.0)
	}

	out := t.TempDir()
	require.NoError(t, NewReporter(res, out).GenerateReport())

	summary, err := os.ReadFile(filepath.Join(out, "evaluation_summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Examples: 4 (scored 3, skipped 1)")
	assert.Contains(t, string(summary), "CONFUSION MATRIX")

	csvData, err := os.ReadFile(filepath.Join(out, "predictions.csv"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(csvData)), "\n"), 4)

	raw, err := os.ReadFile(filepath.Join(out, "evaluation_results.json"))
	require.NoError(t, err)
	var report struct {
		Results Results `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, 3, report.Results.Scored)
}
