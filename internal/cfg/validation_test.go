package cfg

import (
	"strings"
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		ModelPath:        "models/churn_model.json",
		SchemaPath:       "models/features.json",
		Threshold:        0.40,
		APIPort:          8000,
		DashboardPort:    8501,
		DashboardEnabled: true,
		MetricsPort:      9090,
		LogLevel:         "info",
		LogFormat:        "console",
		RequestTimeout:   10 * time.Second,
		MaxBatchSize:     500,
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantMsg string
	}{
		{"empty model path", func(s *Settings) { s.ModelPath = "" }, "model path"},
		{"empty schema path", func(s *Settings) { s.SchemaPath = "" }, "schema path"},
		{"negative threshold", func(s *Settings) { s.Threshold = -0.01 }, "threshold"},
		{"threshold above one", func(s *Settings) { s.Threshold = 1.01 }, "threshold"},
		{"privileged API port", func(s *Settings) { s.APIPort = 80 }, "API port"},
		{"metrics port too high", func(s *Settings) { s.MetricsPort = 70000 }, "metrics port"},
		{"dashboard port too low", func(s *Settings) { s.DashboardPort = 0 }, "dashboard port"},
		{"duplicate ports", func(s *Settings) { s.DashboardPort = s.APIPort }, "must differ"},
		{"timeout too short", func(s *Settings) { s.RequestTimeout = 500 * time.Millisecond }, "request timeout"},
		{"timeout too long", func(s *Settings) { s.RequestTimeout = 10 * time.Minute }, "request timeout"},
		{"zero batch size", func(s *Settings) { s.MaxBatchSize = 0 }, "batch size"},
		{"batch size above limit", func(s *Settings) { s.MaxBatchSize = 10001 }, "batch size"},
		{"unknown log level", func(s *Settings) { s.LogLevel = "verbose" }, "log level"},
		{"unknown log format", func(s *Settings) { s.LogFormat = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			err := validateSettings(settings)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.wantMsg, err)
			}
		})
	}
}

func TestValidateSettings_BoundaryValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"threshold zero", func(s *Settings) { s.Threshold = 0 }},
		{"threshold one", func(s *Settings) { s.Threshold = 1 }},
		{"lowest port", func(s *Settings) { s.APIPort = 1024 }},
		{"highest port", func(s *Settings) { s.MetricsPort = 65535 }},
		{"shortest timeout", func(s *Settings) { s.RequestTimeout = time.Second }},
		{"longest timeout", func(s *Settings) { s.RequestTimeout = 5 * time.Minute }},
		{"single record batches", func(s *Settings) { s.MaxBatchSize = 1 }},
		{"largest batches", func(s *Settings) { s.MaxBatchSize = 10000 }},
		{"disabled dashboard ignores its port", func(s *Settings) {
			s.DashboardEnabled = false
			s.DashboardPort = s.APIPort
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			if err := validateSettings(settings); err != nil {
				t.Errorf("Expected boundary value to pass, got: %v", err)
			}
		})
	}
}
