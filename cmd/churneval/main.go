package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"churn-service/internal/cfg"
	"churn-service/internal/evaluate"
	"churn-service/internal/inference"
	"churn-service/internal/ml"
	"churn-service/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line arguments
	var (
		dataPath   = flag.String("data", "", "CSV/JSON file of customers, or the prediction log directory (default: DATA_PATH)")
		dataFormat = flag.String("format", "auto", "Data format: auto, csv, json, boltdb")
		outputPath = flag.String("output", "", "Output directory for reports")
		modelPath  = flag.String("model", "", "Model artifact (overrides config)")
		schemaPath = flag.String("schema", "", "Schema artifact (overrides config)")
		threshold  = flag.Float64("threshold", -1, "Decision threshold (overrides config)")
		batchSize  = flag.Int("batch", evaluate.DefaultBatchSize, "Records scored together")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		startDate  = flag.String("start", "", "Replay start date (YYYY-MM-DD), boltdb only")
		endDate    = flag.String("end", "", "Replay end date (YYYY-MM-DD), boltdb only")
	)
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Override config with command line arguments
	if *modelPath != "" {
		config.ModelPath = *modelPath
	}
	if *schemaPath != "" {
		config.SchemaPath = *schemaPath
	}
	if *threshold >= 0 {
		config.Threshold = *threshold
	}
	if *dataPath == "" {
		*dataPath = config.DataPath
	}
	if *dataPath == "" {
		log.Fatal().Msg("no data to evaluate: pass -data or set DATA_PATH")
	}

	startTime, endTime := time.Unix(0, 0), time.Now()
	if *startDate != "" {
		if startTime, err = time.Parse("2006-01-02", *startDate); err != nil {
			log.Fatal().Err(err).Msg("Invalid start date format")
		}
	}
	if *endDate != "" {
		if endTime, err = time.Parse("2006-01-02", *endDate); err != nil {
			log.Fatal().Err(err).Msg("Invalid end date format")
		}
		// the end date is inclusive
		endTime = endTime.Add(24*time.Hour - time.Nanosecond)
	}

	loader := evaluate.NewDataLoader()
	if err := loadData(loader, *dataFormat, *dataPath, startTime, endTime); err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}

	model, err := ml.LoadArtifacts(config.ModelPath, config.SchemaPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model artifacts")
	}
	svc, err := inference.New(model, config.Threshold, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create inference service")
	}

	engine := evaluate.NewEngine(svc, loader, *batchSize)
	if err := engine.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}

	results := engine.GetResults()
	reporter := evaluate.NewReporter(results, *outputPath)
	if *outputPath != "" {
		if err := reporter.GenerateReport(); err != nil {
			log.Error().Err(err).Msg("Failed to generate reports")
		}
	}
	reporter.PrintSummary()

	log.Info().
		Str("model_version", model.Metadata().Version).
		Str("output", *outputPath).
		Msg("Evaluation completed successfully")
}

func loadData(loader *evaluate.DataLoader, format, path string, start, end time.Time) error {
	if format == "auto" {
		var err error
		if format, err = detectFormat(path); err != nil {
			return err
		}
	}

	switch format {
	case "csv":
		return loader.LoadFromCSV(path)
	case "json":
		return loader.LoadFromJSON(path)
	case "boltdb":
		store, err := storage.New(path)
		if err != nil {
			return fmt.Errorf("failed to open prediction log: %w", err)
		}
		defer store.Close()
		return loader.LoadFromStore(store, start, end)
	default:
		return fmt.Errorf("unknown data format %q", format)
	}
}

// detectFormat picks the loader from the path: a directory is the
// prediction log, files go by extension.
func detectFormat(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		return "boltdb", nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv", nil
	case ".json", ".jsonl", ".ndjson":
		return "json", nil
	default:
		return "", fmt.Errorf("cannot determine file format for: %s", path)
	}
}
