// Package features turns raw customer records into the fixed-width numeric
// vectors the churn classifier was trained on.
//
// Preprocessing runs in two pure stages. Engineer normalizes field names,
// coerces and imputes numeric fields, fills missing categories and derives
// the engineered columns. Encoder one-hot encodes categorical fields with the
// reference category dropped and aligns the result to the frozen Schema.
package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single scalar cell of a raw record. A field that is present
// with a null value is represented by a Value of KindNull; an absent field
// has no entry in the RawRecord at all.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
}

func Null() Value               { return Value{Kind: KindNull} }
func Number(f float64) Value    { return Value{Kind: KindNumber, Num: f} }
func String(s string) Value     { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func (v Value) IsNull() bool    { return v.Kind == KindNull }
func (v Value) IsString() bool  { return v.Kind == KindString }
func (v Value) IsNumeric() bool { return v.Kind == KindNumber || v.Kind == KindBool }

// Float coerces the value to a finite float64. Strings are parsed after
// trimming whitespace and booleans map to 1 and 0. The second return value
// is false when the value is null, unparseable or not finite.
func (v Value) Float() (float64, bool) {
	var f float64
	switch v.Kind {
	case KindNumber:
		f = v.Num
	case KindBool:
		if v.Bool {
			f = 1
		}
	case KindString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Text renders the value as a category label.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.Num)
	case KindString:
		return json.Marshal(v.Str)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '{', '[':
		return fmt.Errorf("unsupported value %s: only scalars are allowed", data)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Number(f)
		return nil
	}
}

// RawRecord maps field names to scalar values exactly as received.
type RawRecord map[string]Value

// Fields returns the field names in sorted order.
func (r RawRecord) Fields() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize returns a copy of the record with leading and trailing
// whitespace stripped from every field name. When two names collapse onto
// the same trimmed name, the one that was already trimmed wins; otherwise
// the lexically smallest original name wins.
func (r RawRecord) Normalize() RawRecord {
	out := make(RawRecord, len(r))
	origin := make(map[string]string, len(r))
	for _, name := range r.Fields() {
		trimmed := strings.TrimSpace(name)
		if prev, seen := origin[trimmed]; seen && (prev == trimmed || name != trimmed) {
			continue
		}
		origin[trimmed] = name
		out[trimmed] = r[name]
	}
	return out
}

// Record is an engineered record: every column is either numeric or
// categorical and no value is missing.
type Record struct {
	Numeric     map[string]float64
	Categorical map[string]string
}

func newRecord() Record {
	return Record{
		Numeric:     make(map[string]float64),
		Categorical: make(map[string]string),
	}
}

// Has reports whether the column exists in the record.
func (r Record) Has(name string) bool {
	if _, ok := r.Numeric[name]; ok {
		return true
	}
	_, ok := r.Categorical[name]
	return ok
}
