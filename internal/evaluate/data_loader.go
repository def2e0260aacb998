package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"churn-service/internal/features"
	"churn-service/internal/inference"

	"github.com/rs/zerolog/log"
)

// Label columns recognised in evaluation data. They are removed from the
// record before scoring.
const (
	ColumnChurnValue = "Churn Value"
	ColumnChurnLabel = "Churn Label"
	ColumnChurn      = "Churn"
)

var labelColumns = []string{ColumnChurnValue, ColumnChurnLabel, ColumnChurn}

// Example is one customer to score, with the observed outcome when known.
type Example struct {
	Record features.RawRecord

	// Actual is 1 for a churned customer, 0 for a retained one.
	Actual   int
	HasLabel bool

	// Previous is the probability logged when the record was first scored.
	Previous    float64
	HasPrevious bool
}

// Recorded returns the stored predictions between start and end, inclusive.
type Recorded interface {
	Range(start, end time.Time) ([]inference.Prediction, error)
}

// DataLoader holds the examples of one evaluation run.
type DataLoader struct {
	data  []Example
	index int
}

// NewDataLoader creates a new data loader
func NewDataLoader() *DataLoader {
	return &DataLoader{
		data: make([]Example, 0),
	}
}

// LoadFromCSV loads customers from a CSV file with a header row naming the
// fields. Empty cells are nulls.
func (dl *DataLoader) LoadFromCSV(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	if err := dl.ReadCSV(file); err != nil {
		return err
	}

	log.Info().
		Str("file", filePath).
		Int("examples", len(dl.data)).
		Msg("CSV data loaded successfully")
	return nil
}

// ReadCSV is LoadFromCSV for an open reader.
func (dl *DataLoader) ReadCSV(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		rec := make(features.RawRecord, len(header))
		for i, name := range header {
			if i >= len(row) {
				break
			}
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				rec[name] = features.Null()
				continue
			}
			rec[name] = features.String(cell)
		}

		ex, err := newExample(rec)
		if err != nil {
			return fmt.Errorf("CSV line %d: %w", line, err)
		}
		dl.data = append(dl.data, ex)
	}
	return nil
}

// LoadFromJSON loads customers from a JSON array of objects or from JSON
// lines, one object per line.
func (dl *DataLoader) LoadFromJSON(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	if err := dl.ReadJSON(file); err != nil {
		return err
	}

	log.Info().
		Str("file", filePath).
		Int("examples", len(dl.data)).
		Msg("JSON data loaded successfully")
	return nil
}

// ReadJSON is LoadFromJSON for an open reader.
func (dl *DataLoader) ReadJSON(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read JSON data: %w", err)
	}

	var records []features.RawRecord
	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("failed to parse JSON array: %w", err)
		}
	} else {
		decoder := json.NewDecoder(strings.NewReader(trimmed))
		for decoder.More() {
			var rec features.RawRecord
			if err := decoder.Decode(&rec); err != nil {
				return fmt.Errorf("failed to parse JSON record %d: %w", len(records)+1, err)
			}
			records = append(records, rec)
		}
	}

	for i, rec := range records {
		ex, err := newExample(rec)
		if err != nil {
			return fmt.Errorf("JSON record %d: %w", i+1, err)
		}
		dl.data = append(dl.data, ex)
	}
	return nil
}

// LoadFromStore replays the logged predictions between start and end so
// they can be rescored with the current model.
func (dl *DataLoader) LoadFromStore(store Recorded, start, end time.Time) error {
	log.Info().
		Time("start", start).
		Time("end", end).
		Msg("Loading predictions from the prediction log")

	preds, err := store.Range(start, end)
	if err != nil {
		return fmt.Errorf("failed to load predictions: %w", err)
	}

	for _, p := range preds {
		dl.data = append(dl.data, Example{
			Record:      p.Input,
			Previous:    p.Probability,
			HasPrevious: true,
		})
	}

	log.Info().
		Int("examples", len(preds)).
		Msg("Prediction log loaded successfully")
	return nil
}

// newExample splits the label columns off a record.
func newExample(rec features.RawRecord) (Example, error) {
	rec = rec.Normalize()
	ex := Example{Record: rec}
	for _, col := range labelColumns {
		v, ok := rec[col]
		if !ok {
			continue
		}
		delete(rec, col)
		if ex.HasLabel || v.IsNull() {
			continue
		}
		actual, err := parseLabel(v)
		if err != nil {
			return Example{}, fmt.Errorf("column %q: %w", col, err)
		}
		ex.Actual, ex.HasLabel = actual, true
	}
	return ex, nil
}

func parseLabel(v features.Value) (int, error) {
	text := strings.TrimSpace(v.Text())
	switch strings.ToLower(text) {
	case "yes", "true":
		return 1, nil
	case "no", "false":
		return 0, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || (f != 0 && f != 1) {
		return 0, fmt.Errorf("invalid churn label %q", text)
	}
	return int(f), nil
}

// Reset resets the data loader to the beginning
func (dl *DataLoader) Reset() {
	dl.index = 0
}

// HasNext returns true if there's more data to process
func (dl *DataLoader) HasNext() bool {
	return dl.index < len(dl.data)
}

// Next returns up to n examples.
func (dl *DataLoader) Next(n int) []Example {
	if dl.index >= len(dl.data) {
		return nil
	}
	end := dl.index + n
	if n <= 0 || end > len(dl.data) {
		end = len(dl.data)
	}
	chunk := dl.data[dl.index:end]
	dl.index = end
	return chunk
}

// GetDataCount returns the total number of examples
func (dl *DataLoader) GetDataCount() int {
	return len(dl.data)
}

// GetProgress returns the current progress as a percentage
func (dl *DataLoader) GetProgress() float64 {
	if len(dl.data) == 0 {
		return 100.0
	}
	return float64(dl.index) / float64(len(dl.data)) * 100.0
}
