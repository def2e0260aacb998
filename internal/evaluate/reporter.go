package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Reporter generates evaluation reports
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport writes the summary, the per-row predictions and a JSON
// report into the output directory.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}

	if err := r.generatePredictionLog(); err != nil {
		return err
	}

	return r.generateJSONReport()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "evaluation_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.WriteSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// WriteSummary writes a human-readable summary
func (r *Reporter) WriteSummary(w io.Writer) {
	res := r.results

	fmt.Fprintf(w, "EVALUATION RESULTS SUMMARY\n")
	fmt.Fprintf(w, "==========================\n\n")

	fmt.Fprintf(w, "Examples: %d (scored %d, skipped %d)\n", res.Total, res.Scored, res.Skipped)
	fmt.Fprintf(w, "Threshold: %g\n", res.Threshold)
	fmt.Fprintf(w, "Mean Probability: %.4f\n", res.MeanProbability)
	fmt.Fprintf(w, "Predicted Churn: %d (%.2f%%)\n\n", res.PredictedChurn, percent(res.PredictedChurn, res.Scored))

	if res.Labelled > 0 {
		fmt.Fprintf(w, "CLASSIFICATION METRICS\n")
		fmt.Fprintf(w, "----------------------\n")
		fmt.Fprintf(w, "Labelled Examples: %d\n", res.Labelled)
		fmt.Fprintf(w, "Accuracy: %.2f%%\n", res.Accuracy*100)
		fmt.Fprintf(w, "Precision: %.4f\n", res.Precision)
		fmt.Fprintf(w, "Recall: %.4f\n", res.Recall)
		fmt.Fprintf(w, "F1: %.4f\n", res.F1)
		fmt.Fprintf(w, "ROC AUC: %.4f\n", res.AUC)
		fmt.Fprintf(w, "Log Loss: %.4f\n\n", res.LogLoss)

		fmt.Fprintf(w, "CONFUSION MATRIX\n")
		fmt.Fprintf(w, "----------------\n")
		fmt.Fprintf(w, "%-16s %10s %10s\n", "", "pred churn", "pred stay")
		fmt.Fprintf(w, "%-16s %10d %10d\n", "actual churn", res.TruePositives, res.FalseNegatives)
		fmt.Fprintf(w, "%-16s %10d %10d\n", "actual stay", res.FalsePositives, res.TrueNegatives)
	}

	if res.Replayed > 0 {
		fmt.Fprintf(w, "\nREPLAY AGAINST LOGGED PREDICTIONS\n")
		fmt.Fprintf(w, "---------------------------------\n")
		fmt.Fprintf(w, "Replayed: %d\n", res.Replayed)
		fmt.Fprintf(w, "Mean |delta|: %.6f\n", res.MeanAbsDelta)
		fmt.Fprintf(w, "Max |delta|: %.6f\n", res.MaxAbsDelta)
		fmt.Fprintf(w, "Changed Labels: %d\n", res.ChangedLabels)
	}
}

// generatePredictionLog writes one CSV line per scored example
func (r *Reporter) generatePredictionLog() error {
	csvPath := filepath.Join(r.outputPath, "predictions.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create prediction log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"Index", "Churn Probability", "Churn Prediction", "Actual", "Previous Probability"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range r.results.Rows {
		actual, previous := "", ""
		if row.Actual != nil {
			actual = strconv.Itoa(*row.Actual)
		}
		if row.Previous != nil {
			previous = fmt.Sprintf("%.6f", *row.Previous)
		}
		record := []string{
			strconv.Itoa(row.Index),
			fmt.Sprintf("%.6f", row.Probability),
			strconv.Itoa(row.Prediction),
			actual,
			previous,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write prediction log: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Prediction log generated")
	return nil
}

// generateJSONReport generates a JSON report with all data
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "evaluation_results.json")

	report := map[string]interface{}{
		"results":      r.results,
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints a summary to console
func (r *Reporter) PrintSummary() {
	fmt.Println()
	r.WriteSummary(os.Stdout)
	fmt.Println("==========================")
}

func percent(a, b int) float64 {
	return ratio(a, b) * 100
}
