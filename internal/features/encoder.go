package features

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// ErrNonFinite is returned when a numeric column holds NaN or an infinity.
var ErrNonFinite = errors.New("non-finite feature value")

// UnknownCategoryObserver is notified when a categorical value falls outside
// the frozen vocabulary of its field.
type UnknownCategoryObserver interface {
	UnknownCategoryInc(field string)
}

// Encoder one-hot encodes engineered records and aligns them to a Schema.
// It holds no mutable state and is safe for concurrent use.
type Encoder struct {
	schema   *Schema
	observer UnknownCategoryObserver
}

// NewEncoder creates an encoder for schema. observer may be nil.
func NewEncoder(schema *Schema, observer UnknownCategoryObserver) *Encoder {
	return &Encoder{schema: schema, observer: observer}
}

// Schema returns the schema the encoder aligns to.
func (e *Encoder) Schema() *Schema { return e.schema }

// Encode produces a vector with one dimension per schema column. Schema
// columns missing from the record are 0 and record columns missing from the
// schema are dropped.
func (e *Encoder) Encode(rec Record) ([]float64, error) {
	vec := make([]float64, e.schema.Width())

	for col, v := range rec.Numeric {
		i, ok := e.schema.Index(col)
		if !ok {
			continue
		}
		if !finite(v) {
			return nil, fmt.Errorf("%w: column %q", ErrNonFinite, col)
		}
		vec[i] = v
	}

	fields := make([]string, 0, len(rec.Categorical))
	for field := range rec.Categorical {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := rec.Categorical[field]
		if values, frozen := e.schema.Categories(field); frozen {
			pos := sort.SearchStrings(values, value)
			if pos == len(values) || values[pos] != value {
				e.unknown(field, value)
				continue
			}
			if pos == 0 {
				continue
			}
		}
		if i, ok := e.schema.Index(DummyColumn(field, value)); ok {
			vec[i] = 1
		}
	}

	return vec, nil
}

// EncodeBatch encodes every record, stopping at the first error.
func (e *Encoder) EncodeBatch(recs []Record) ([][]float64, error) {
	out := make([][]float64, len(recs))
	for i, rec := range recs {
		vec, err := e.Encode(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Encoder) unknown(field, value string) {
	log.Debug().
		Str("field", field).
		Str("value", value).
		Msg("category not seen during training, encoding as reference")
	if e.observer != nil {
		e.observer.UnknownCategoryInc(field)
	}
}
