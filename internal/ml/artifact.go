package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"churn-service/internal/features"

	"github.com/rs/zerolog/log"
)

// decoders maps the artifact "type" field to the decoder for its params.
var decoders = map[string]func(json.RawMessage) (Classifier, error){
	typeLogistic: decodeLogistic,
	typeBoosting: decodeBoosting,
}

// SupportedTypes lists the classifier families that can be loaded.
func SupportedTypes() []string {
	types := make([]string, 0, len(decoders))
	for t := range decoders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ModelArtifact is the on-disk form of a trained classifier.
type ModelArtifact struct {
	Type      string          `json:"type"`
	Version   string          `json:"version"`
	TrainedAt time.Time       `json:"trained_at"`
	NFeatures int             `json:"n_features"`
	Params    json.RawMessage `json:"params"`
}

// SchemaArtifact is the on-disk form of the feature schema. Older exports
// carry only the column list as a bare JSON array.
type SchemaArtifact struct {
	Columns    []string            `json:"columns"`
	Categories map[string][]string `json:"categories,omitempty"`
	Imputation map[string]float64  `json:"imputation,omitempty"`
}

// Metadata describes the loaded artifact pair.
type Metadata struct {
	Type       string    `json:"type"`
	Version    string    `json:"version"`
	TrainedAt  time.Time `json:"trained_at"`
	ModelPath  string    `json:"model_path"`
	SchemaPath string    `json:"schema_path"`
	ModifiedAt time.Time `json:"modified_at"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// Model is a classifier paired with the schema it was trained on.
type Model struct {
	classifier Classifier
	schema     *features.Schema
	metadata   Metadata
}

// NewModel pairs a classifier with a schema, failing when their widths differ.
func NewModel(c Classifier, schema *features.Schema, md Metadata) (*Model, error) {
	if c == nil || schema == nil {
		return nil, fmt.Errorf("%w: classifier and schema are required", ErrArtifact)
	}
	if c.InputWidth() != schema.Width() {
		return nil, fmt.Errorf("%w: classifier expects %d features, schema has %d columns",
			ErrSchemaMismatch, c.InputWidth(), schema.Width())
	}
	if md.Type == "" {
		md.Type = c.Type()
	}
	return &Model{classifier: c, schema: schema, metadata: md}, nil
}

// LoadArtifacts reads the classifier and schema artifacts. Any error is a
// startup configuration error; callers should not serve without a model.
func LoadArtifacts(modelPath, schemaPath string) (*Model, error) {
	modelData, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read model %s: %v", ErrArtifact, modelPath, err)
	}
	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read schema %s: %v", ErrArtifact, schemaPath, err)
	}

	var artifact ModelArtifact
	if err := json.Unmarshal(modelData, &artifact); err != nil {
		return nil, fmt.Errorf("%w: parse model %s: %v", ErrArtifact, modelPath, err)
	}
	classifier, err := DecodeClassifier(artifact)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}

	schema, err := DecodeSchema(schemaData)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", schemaPath, err)
	}

	md := Metadata{
		Type:       artifact.Type,
		Version:    artifact.Version,
		TrainedAt:  artifact.TrainedAt,
		ModelPath:  modelPath,
		SchemaPath: schemaPath,
		LoadedAt:   time.Now(),
	}
	if info, err := os.Stat(modelPath); err == nil {
		md.ModifiedAt = info.ModTime()
	}

	model, err := NewModel(classifier, schema, md)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("model_path", modelPath).
		Str("schema_path", schemaPath).
		Str("type", md.Type).
		Str("version", md.Version).
		Int("features", schema.Width()).
		Msg("model artifacts loaded")

	return model, nil
}

// DecodeClassifier builds a classifier from a parsed artifact.
func DecodeClassifier(a ModelArtifact) (Classifier, error) {
	decode, ok := decoders[a.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported classifier type %q (supported: %v)", ErrArtifact, a.Type, SupportedTypes())
	}
	if len(a.Params) == 0 {
		return nil, fmt.Errorf("%w: %s artifact has no params", ErrArtifact, a.Type)
	}
	c, err := decode(a.Params)
	if err != nil {
		return nil, err
	}
	if a.NFeatures != 0 && a.NFeatures != c.InputWidth() {
		return nil, fmt.Errorf("%w: n_features is %d but params describe %d", ErrArtifact, a.NFeatures, c.InputWidth())
	}
	return c, nil
}

// DecodeSchema parses a schema artifact in either the object or the bare
// column list form.
func DecodeSchema(data []byte) (*features.Schema, error) {
	var sa SchemaArtifact
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &sa.Columns); err != nil {
			return nil, fmt.Errorf("%w: parse column list: %v", ErrArtifact, err)
		}
	} else if err := json.Unmarshal(trimmed, &sa); err != nil {
		return nil, fmt.Errorf("%w: parse schema: %v", ErrArtifact, err)
	}

	schema, err := features.NewSchema(sa.Columns, sa.Categories, sa.Imputation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifact, err)
	}
	return schema, nil
}

// Schema returns the feature schema the classifier was trained on.
func (m *Model) Schema() *features.Schema { return m.schema }

// Metadata returns a copy of the artifact metadata.
func (m *Model) Metadata() Metadata { return m.metadata }

// Age is the time since the model artifact was last written.
func (m *Model) Age() time.Duration {
	if m.metadata.ModifiedAt.IsZero() {
		return 0
	}
	return time.Since(m.metadata.ModifiedAt)
}

// Score returns the churn probability for an encoded vector.
func (m *Model) Score(x []float64) (float64, error) {
	p, err := m.classifier.Score(x)
	if err != nil {
		return 0, err
	}
	if !isFinite(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidScore, p)
	}
	return p, nil
}

// Explicable reports whether Explain can attribute scores.
func (m *Model) Explicable() bool {
	_, ok := m.classifier.(Explainer)
	return ok
}

// Contribution is the share of the decision value attributed to one column.
type Contribution struct {
	Column string  `json:"column"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// Explain returns the top contributions to the score of x ranked by absolute
// weight, or false when the classifier cannot attribute its score.
func (m *Model) Explain(x []float64, top int) ([]Contribution, bool, error) {
	ex, ok := m.classifier.(Explainer)
	if !ok {
		return nil, false, nil
	}
	weights, err := ex.Contributions(x)
	if err != nil {
		return nil, true, err
	}

	columns := m.schema.Columns()
	out := make([]Contribution, 0, len(weights))
	for i, w := range weights {
		if w == 0 {
			continue
		}
		out = append(out, Contribution{Column: columns[i], Value: x[i], Weight: w})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Weight) > abs(out[j].Weight)
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out, true, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
