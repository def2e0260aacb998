package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"churn-service/internal/common"
)

var envKeys = []string{
	common.EnvConfigFile, common.EnvModelPath, common.EnvSchemaPath, common.EnvThreshold,
	common.EnvAPIPort, common.EnvDashboardPort, common.EnvDashboardEnabled, common.EnvMetricsPort,
	common.EnvDataPath, common.EnvLogLevel, common.EnvLogFormat, common.EnvRequestTimeout,
	common.EnvMaxBatchSize, common.EnvAPIURL,
}

// clearTestEnv unsets every variable Load reads, restoring them after the test.
func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != common.DefaultModelPath {
					t.Errorf("expected default ModelPath, got %s", settings.ModelPath)
				}
				if settings.SchemaPath != common.DefaultSchemaPath {
					t.Errorf("expected default SchemaPath, got %s", settings.SchemaPath)
				}
				if settings.Threshold != 0.40 {
					t.Errorf("expected default threshold 0.40, got %f", settings.Threshold)
				}
				if settings.APIPort != 8000 || settings.DashboardPort != 8501 || settings.MetricsPort != 9090 {
					t.Errorf("unexpected default ports %d/%d/%d", settings.APIPort, settings.DashboardPort, settings.MetricsPort)
				}
				if !settings.DashboardEnabled {
					t.Error("expected dashboard to be enabled by default")
				}
				if settings.DataPath != "" {
					t.Errorf("expected prediction log disabled by default, got %q", settings.DataPath)
				}
				if settings.RequestTimeout != 10*time.Second {
					t.Errorf("expected default RequestTimeout 10s, got %v", settings.RequestTimeout)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				common.EnvModelPath:        "/models/gb.json",
				common.EnvThreshold:        "0.55",
				common.EnvAPIPort:          "9000",
				common.EnvDashboardEnabled: "false",
				common.EnvDashboardPort:    "9000",
				common.EnvDataPath:         "/var/lib/churn",
				common.EnvLogLevel:         "debug",
				common.EnvLogFormat:        "json",
				common.EnvRequestTimeout:   "30s",
				common.EnvMaxBatchSize:     "50",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != "/models/gb.json" {
					t.Errorf("expected ModelPath override, got %s", settings.ModelPath)
				}
				if settings.Threshold != 0.55 {
					t.Errorf("expected threshold 0.55, got %f", settings.Threshold)
				}
				if settings.APIPort != 9000 {
					t.Errorf("expected APIPort 9000, got %d", settings.APIPort)
				}
				if settings.DashboardEnabled {
					t.Error("expected dashboard to be disabled")
				}
				if settings.DataPath != "/var/lib/churn" {
					t.Errorf("expected DataPath override, got %s", settings.DataPath)
				}
				if settings.LogLevel != "debug" || settings.LogFormat != "json" {
					t.Errorf("unexpected logging settings %s/%s", settings.LogLevel, settings.LogFormat)
				}
				if settings.RequestTimeout != 30*time.Second {
					t.Errorf("expected RequestTimeout 30s, got %v", settings.RequestTimeout)
				}
				if settings.MaxBatchSize != 50 {
					t.Errorf("expected MaxBatchSize 50, got %d", settings.MaxBatchSize)
				}
			},
		},
		{
			name:    "unparseable values fall back to defaults",
			envVars: map[string]string{common.EnvAPIPort: "eight thousand", common.EnvRequestTimeout: "soon"},
			validate: func(t *testing.T, settings Settings) {
				if settings.APIPort != common.DefaultAPIPort {
					t.Errorf("expected default APIPort, got %d", settings.APIPort)
				}
				if settings.RequestTimeout != common.DefaultRequestTimeout {
					t.Errorf("expected default RequestTimeout, got %v", settings.RequestTimeout)
				}
			},
		},
		{
			name:    "threshold out of range",
			envVars: map[string]string{common.EnvThreshold: "1.5"},
			wantErr: true,
		},
		{
			name:    "port collision",
			envVars: map[string]string{common.EnvMetricsPort: "8000"},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			envVars: map[string]string{common.EnvLogLevel: "loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
model:
  path: "artifacts/model.json"
  schemaPath: "artifacts/features.json"
  threshold: 0.35

server:
  apiPort: 8080
  metricsPort: 9100
  requestTimeout: "15s"
  maxBatchSize: 100

dashboard:
  port: 8600
  apiURL: "http://churn-api:8080"

storage:
  dataPath: "/data"

logging:
  level: "warn"
  format: "json"
`,
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != "artifacts/model.json" {
					t.Errorf("expected ModelPath from file, got %s", settings.ModelPath)
				}
				if settings.SchemaPath != "artifacts/features.json" {
					t.Errorf("expected SchemaPath from file, got %s", settings.SchemaPath)
				}
				if settings.Threshold != 0.35 {
					t.Errorf("expected threshold 0.35, got %f", settings.Threshold)
				}
				if settings.APIPort != 8080 || settings.MetricsPort != 9100 || settings.DashboardPort != 8600 {
					t.Errorf("unexpected ports %d/%d/%d", settings.APIPort, settings.MetricsPort, settings.DashboardPort)
				}
				if settings.RequestTimeout != 15*time.Second {
					t.Errorf("expected RequestTimeout 15s, got %v", settings.RequestTimeout)
				}
				if settings.MaxBatchSize != 100 {
					t.Errorf("expected MaxBatchSize 100, got %d", settings.MaxBatchSize)
				}
				if settings.APIURL != "http://churn-api:8080" {
					t.Errorf("expected APIURL from file, got %s", settings.APIURL)
				}
				if settings.DataPath != "/data" {
					t.Errorf("expected DataPath from file, got %s", settings.DataPath)
				}
				if settings.LogLevel != "warn" || settings.LogFormat != "json" {
					t.Errorf("unexpected logging %s/%s", settings.LogLevel, settings.LogFormat)
				}
			},
		},
		{
			name: "environment overrides file",
			yamlContent: `
model:
  threshold: 0.35
server:
  apiPort: 8080
`,
			envOverrides: map[string]string{
				common.EnvThreshold: "0.6",
				common.EnvAPIPort:   "8181",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Threshold != 0.6 {
					t.Errorf("expected env threshold 0.6, got %f", settings.Threshold)
				}
				if settings.APIPort != 8181 {
					t.Errorf("expected env APIPort 8181, got %d", settings.APIPort)
				}
			},
		},
		{
			name:        "empty file uses defaults",
			yamlContent: "",
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != common.DefaultModelPath || settings.Threshold != common.DefaultThreshold {
					t.Errorf("expected defaults, got %+v", settings)
				}
				if settings.RequestTimeout != common.DefaultRequestTimeout {
					t.Errorf("expected default RequestTimeout, got %v", settings.RequestTimeout)
				}
				if !settings.DashboardEnabled {
					t.Error("expected dashboard enabled by default")
				}
			},
		},
		{
			name: "dashboard disabled",
			yamlContent: `
dashboard:
  enabled: false
  port: 8000
`,
			validate: func(t *testing.T, settings Settings) {
				if settings.DashboardEnabled {
					t.Error("expected dashboard disabled")
				}
			},
		},
		{
			name:        "invalid YAML",
			yamlContent: "model: [unclosed",
			wantErr:     true,
		},
		{
			name: "invalid batch size",
			yamlContent: `
server:
  maxBatchSize: 20000
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}

			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			settings, err := loadFromYAML(configPath)

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad_UsesConfigFileEnv(t *testing.T) {
	clearTestEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("model:\n  threshold: 0.25\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(common.EnvConfigFile, configPath)

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Threshold != 0.25 {
		t.Errorf("expected threshold from config file, got %f", settings.Threshold)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearTestEnv(t)
	t.Setenv(common.EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearTestEnv(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CHURN_THRESHOLD=0.45\nAPI_PORT=8111\n"), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	// Variables already set win over the file.
	t.Setenv(common.EnvAPIPort, "8222")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Threshold != 0.45 {
		t.Errorf("expected threshold from .env, got %f", settings.Threshold)
	}
	if settings.APIPort != 8222 {
		t.Errorf("expected APIPort from environment, got %d", settings.APIPort)
	}
}
