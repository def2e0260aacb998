package features

import (
	"math"
	"sort"

	"churn-service/internal/common"
)

var (
	numericFields = toSet(common.NumericFields)
	serviceFields = toSet(common.ServiceFields)
	longContracts = toSet([]string{common.ContractOneYear, common.ContractTwoYear})
)

// Engineer preprocesses a single record. It is EngineerBatch with a batch
// of one, so a missing numeric field falls back to the imputation value from
// fallback, or 0 when fallback has none.
func Engineer(raw RawRecord, fallback map[string]float64) Record {
	return EngineerBatch([]RawRecord{raw}, fallback)[0]
}

// EngineerBatch preprocesses records that are scored together.
//
// A column is present for the batch when any record carries it; records
// lacking a present column treat it as missing. Missing numeric values are
// filled with the batch median of that field, then with fallback[field],
// then with 0. Missing service flags become "No" and every other missing
// category becomes "Unknown". The input records are never modified.
func EngineerBatch(raws []RawRecord, fallback map[string]float64) []Record {
	rows := make([]RawRecord, len(raws))
	for i, raw := range raws {
		rows[i] = raw.Normalize()
	}

	columns := batchColumns(rows)
	out := make([]Record, len(rows))
	for i := range out {
		out[i] = newRecord()
	}

	for _, col := range columns {
		switch {
		case numericFields[col]:
			fillNumeric(rows, out, col, fallback)
		case isCategorical(rows, col):
			fillCategorical(rows, out, col)
		default:
			fillPassthrough(rows, out, col)
		}
	}

	for i := range out {
		derive(&out[i])
	}
	return out
}

func batchColumns(rows []RawRecord) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func fillNumeric(rows []RawRecord, out []Record, col string, fallback map[string]float64) {
	values := make([]float64, len(rows))
	missing := make([]bool, len(rows))
	observed := make([]float64, 0, len(rows))

	for i, row := range rows {
		v, ok := row[col]
		if ok {
			values[i], ok = v.Float()
		}
		if !ok {
			missing[i] = true
			continue
		}
		observed = append(observed, values[i])
	}

	fill, ok := median(observed)
	if !ok {
		fill = fallback[col]
	}
	for i := range rows {
		if missing[i] {
			values[i] = fill
		}
		out[i].Numeric[col] = values[i]
	}
}

// isCategorical reports whether the column holds text. A column that is
// null in every row is treated as categorical.
func isCategorical(rows []RawRecord, col string) bool {
	numeric := false
	for _, row := range rows {
		v, ok := row[col]
		if !ok {
			continue
		}
		switch {
		case v.IsString():
			return true
		case v.IsNumeric():
			numeric = true
		}
	}
	return !numeric
}

func fillCategorical(rows []RawRecord, out []Record, col string) {
	missingValue := common.CategoryUnknown
	if serviceFields[col] {
		missingValue = common.ServiceNo
	}
	for i, row := range rows {
		v, ok := row[col]
		if !ok || v.IsNull() {
			out[i].Categorical[col] = missingValue
			continue
		}
		out[i].Categorical[col] = v.Text()
	}
}

// fillPassthrough copies numeric columns that are not imputed. A null in
// such a column takes the alignment fill value of 0.
func fillPassthrough(rows []RawRecord, out []Record, col string) {
	for i, row := range rows {
		f, _ := row[col].Float()
		out[i].Numeric[col] = f
	}
}

func derive(rec *Record) {
	tenure, hasTenure := rec.Numeric[common.FieldTenureMonths]
	total, hasTotal := rec.Numeric[common.FieldTotalCharges]

	if hasTenure && hasTotal {
		rec.Numeric[common.FeatureAvgMonthlySpend] = total / (tenure + 1)
	}
	if hasTenure {
		rec.Numeric[common.FeatureIsNewCustomer] = indicator(tenure < common.NewCustomerTenure)
	}
	if rec.Has(common.FieldContract) {
		contract := rec.Categorical[common.FieldContract]
		rec.Numeric[common.FeatureIsLongContract] = indicator(longContracts[contract])
	}

	count := 0
	for _, name := range common.ServiceFields {
		if rec.Categorical[name] == common.ServiceYes {
			count++
		}
	}
	rec.Numeric[common.FeatureServicesCount] = float64(count)
}

// median returns the median of values, averaging the two middle elements
// for even lengths.
func median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// finite reports whether f is neither NaN nor infinite.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
