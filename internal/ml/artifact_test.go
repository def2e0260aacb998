package ml

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemaJSON = `{
	"columns": ["Tenure Months", "Contract_One year", "Contract_Two year"],
	"categories": {"Contract": ["Two year", "Month-to-month", "One year"]},
	"imputation": {"Tenure Months": 29}
}`

const testModelJSON = `{
	"type": "logistic_regression",
	"version": "test-1",
	"trained_at": "2024-01-02T03:04:05Z",
	"n_features": 3,
	"params": {"coefficients": [-0.05, -1, -2], "intercept": 0.5}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadArtifacts(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeFile(t, dir, "model.json", testModelJSON)
	schemaPath := writeFile(t, dir, "features.json", testSchemaJSON)

	m, err := LoadArtifacts(modelPath, schemaPath)
	require.NoError(t, err)

	md := m.Metadata()
	assert.Equal(t, "logistic_regression", md.Type)
	assert.Equal(t, "test-1", md.Version)
	assert.Equal(t, 2024, md.TrainedAt.Year())
	assert.Equal(t, modelPath, md.ModelPath)
	assert.False(t, md.ModifiedAt.IsZero())
	assert.GreaterOrEqual(t, m.Age().Seconds(), 0.0)

	assert.Equal(t, 3, m.Schema().Width())
	ref, ok := m.Schema().Reference("Contract")
	require.True(t, ok)
	assert.Equal(t, "Month-to-month", ref)

	p, err := m.Score([]float64{10, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(0), p, 1e-12)
}

func TestLoadArtifacts_BareColumnList(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeFile(t, dir, "model.json", testModelJSON)
	schemaPath := writeFile(t, dir, "features.json", `["a", "b", "c"]`)

	m, err := LoadArtifacts(modelPath, schemaPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, m.Schema().Columns())
	_, frozen := m.Schema().Categories("Contract")
	assert.False(t, frozen)
}

func TestLoadArtifacts_Failures(t *testing.T) {
	dir := t.TempDir()
	goodModel := writeFile(t, dir, "model.json", testModelJSON)
	goodSchema := writeFile(t, dir, "features.json", testSchemaJSON)

	tests := []struct {
		name    string
		model   string
		schema  string
		wantErr error
	}{
		{"missing model", filepath.Join(dir, "absent.json"), goodSchema, ErrArtifact},
		{"missing schema", goodModel, filepath.Join(dir, "absent.json"), ErrArtifact},
		{"corrupt model", writeFile(t, dir, "corrupt.json", `{"type":`), goodSchema, ErrArtifact},
		{"corrupt schema", goodModel, writeFile(t, dir, "corrupt_schema.json", `{{`), ErrArtifact},
		{"unknown type", writeFile(t, dir, "svm.json", `{"type": "svm", "params": {}}`), goodSchema, ErrArtifact},
		{"no params", writeFile(t, dir, "noparams.json", `{"type": "logistic_regression"}`), goodSchema, ErrArtifact},
		{
			"declared width disagrees with params",
			writeFile(t, dir, "declared.json", `{"type": "logistic_regression", "n_features": 4, "params": {"coefficients": [1, 2, 3]}}`),
			goodSchema,
			ErrArtifact,
		},
		{
			"schema width mismatch",
			writeFile(t, dir, "wide.json", `{"type": "logistic_regression", "params": {"coefficients": [1, 2, 3, 4]}}`),
			goodSchema,
			ErrSchemaMismatch,
		},
		{"duplicate columns", goodModel, writeFile(t, dir, "dup.json", `["a", "a", "b"]`), ErrArtifact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := LoadArtifacts(tt.model, tt.schema)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadArtifacts_SampleModels(t *testing.T) {
	for _, name := range []string{"churn_model.json", "churn_model_gb.json"} {
		t.Run(name, func(t *testing.T) {
			m, err := LoadArtifacts(filepath.Join("..", "..", "models", name), filepath.Join("..", "..", "models", "features.json"))
			require.NoError(t, err)
			assert.Equal(t, 22, m.Schema().Width())

			p, err := m.Score(make([]float64, m.Schema().Width()))
			require.NoError(t, err)
			assert.True(t, p >= 0 && p <= 1)
		})
	}
}

type constClassifier struct {
	p     float64
	width int
}

func (c constClassifier) Score([]float64) (float64, error) { return c.p, nil }
func (c constClassifier) InputWidth() int                  { return c.width }
func (c constClassifier) Type() string                     { return "const" }

func TestModel_ScoreRejectsInvalidProbability(t *testing.T) {
	schema, err := DecodeSchema([]byte(`["a"]`))
	require.NoError(t, err)

	for _, p := range []float64{-0.1, 1.5, math.NaN()} {
		m, err := NewModel(constClassifier{p: p, width: 1}, schema, Metadata{})
		require.NoError(t, err)
		_, err = m.Score([]float64{0})
		assert.True(t, errors.Is(err, ErrInvalidScore), "p=%v: %v", p, err)
	}

	m, err := NewModel(constClassifier{p: 1, width: 1}, schema, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "const", m.Metadata().Type)
	p, err := m.Score([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
}

func TestModel_Explain(t *testing.T) {
	schema, err := DecodeSchema([]byte(`["a", "b", "c"]`))
	require.NoError(t, err)
	l, err := NewLogistic([]float64{0.5, -3, 1}, 0)
	require.NoError(t, err)
	m, err := NewModel(l, schema, Metadata{})
	require.NoError(t, err)

	got, ok, err := m.Explain([]float64{2, 1, 0}, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2, "zero contributions are omitted")
	assert.Equal(t, "b", got[0].Column)
	assert.Equal(t, -3.0, got[0].Weight)
	assert.Equal(t, "a", got[1].Column)

	top, _, err := m.Explain([]float64{2, 1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	gb, err := NewModel(constClassifier{p: 0.5, width: 3}, schema, Metadata{})
	require.NoError(t, err)
	_, ok, err = gb.Explain([]float64{0, 0, 0}, 3)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSupportedTypes(t *testing.T) {
	assert.Equal(t, []string{"gradient_boosting", "logistic_regression"}, SupportedTypes())
}
