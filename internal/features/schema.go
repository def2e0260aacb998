package features

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidSchema is returned when a schema cannot be used for alignment.
var ErrInvalidSchema = errors.New("invalid feature schema")

// Schema is the frozen, ordered set of columns a classifier was trained on,
// together with the category vocabulary of every categorical field and the
// training-time imputation values. A Schema is immutable after construction.
type Schema struct {
	columns    []string
	index      map[string]int
	categories map[string][]string
	imputation map[string]float64
}

// NewSchema validates and freezes the schema. Category lists are sorted so
// the reference (dropped) category of every field is its smallest value,
// matching drop-first dummy encoding.
func NewSchema(columns []string, categories map[string][]string, imputation map[string]float64) (*Schema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrInvalidSchema)
	}

	s := &Schema{
		columns:    make([]string, len(columns)),
		index:      make(map[string]int, len(columns)),
		categories: make(map[string][]string, len(categories)),
		imputation: make(map[string]float64, len(imputation)),
	}
	copy(s.columns, columns)

	for i, col := range columns {
		if col == "" {
			return nil, fmt.Errorf("%w: empty column name at position %d", ErrInvalidSchema, i)
		}
		if prev, dup := s.index[col]; dup {
			return nil, fmt.Errorf("%w: column %q repeated at positions %d and %d", ErrInvalidSchema, col, prev, i)
		}
		s.index[col] = i
	}

	for field, values := range categories {
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: field %q has no categories", ErrInvalidSchema, field)
		}
		sorted := make([]string, len(values))
		copy(sorted, values)
		sort.Strings(sorted)
		for i := 1; i < len(sorted); i++ {
			if sorted[i] == sorted[i-1] {
				return nil, fmt.Errorf("%w: field %q lists category %q twice", ErrInvalidSchema, field, sorted[i])
			}
		}
		s.categories[field] = sorted
	}

	for field, v := range imputation {
		if !finite(v) {
			return nil, fmt.Errorf("%w: imputation value for %q is not finite", ErrInvalidSchema, field)
		}
		s.imputation[field] = v
	}

	return s, nil
}

// Width is the number of columns, i.e. the classifier input dimension.
func (s *Schema) Width() int { return len(s.columns) }

// Columns returns a copy of the ordered column list.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Index returns the position of a column.
func (s *Schema) Index(column string) (int, bool) {
	i, ok := s.index[column]
	return i, ok
}

// Categories returns the sorted vocabulary of a categorical field.
func (s *Schema) Categories(field string) ([]string, bool) {
	values, ok := s.categories[field]
	return values, ok
}

// Reference returns the category of a field that encodes as all zeros.
func (s *Schema) Reference(field string) (string, bool) {
	values, ok := s.categories[field]
	if !ok {
		return "", false
	}
	return values[0], true
}

// Imputation returns a copy of the training-time fill values.
func (s *Schema) Imputation() map[string]float64 {
	out := make(map[string]float64, len(s.imputation))
	for k, v := range s.imputation {
		out[k] = v
	}
	return out
}

// DummyColumn names the one-hot column for a category value.
func DummyColumn(field, value string) string {
	return field + "_" + value
}
