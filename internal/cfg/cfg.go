package cfg

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"churn-service/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelPath        string
	SchemaPath       string
	Threshold        float64
	APIPort          int
	DashboardPort    int
	DashboardEnabled bool
	MetricsPort      int
	DataPath         string
	LogLevel         string
	LogFormat        string
	RequestTimeout   time.Duration
	MaxBatchSize     int
	APIURL           string
}

type ConfigFile struct {
	Model struct {
		Path       string  `yaml:"path"`
		SchemaPath string  `yaml:"schemaPath"`
		Threshold  float64 `yaml:"threshold"`
	} `yaml:"model"`

	Server struct {
		APIPort        int    `yaml:"apiPort"`
		MetricsPort    int    `yaml:"metricsPort"`
		RequestTimeout string `yaml:"requestTimeout"`
		MaxBatchSize   int    `yaml:"maxBatchSize"`
	} `yaml:"server"`

	Dashboard struct {
		Enabled *bool  `yaml:"enabled"`
		Port    int    `yaml:"port"`
		APIURL  string `yaml:"apiURL"`
	} `yaml:"dashboard"`

	Storage struct {
		DataPath string `yaml:"dataPath"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads settings from the YAML file named by CONFIG_FILE, or from the
// environment when it is unset. A .env file in the working directory is
// loaded first; it never overrides variables that are already set.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = common.DefaultRequestTimeout
	}

	dashboardEnabled := true
	if config.Dashboard.Enabled != nil {
		dashboardEnabled = *config.Dashboard.Enabled
	}

	// Environment variables override the file
	settings := Settings{
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		SchemaPath:       getEnvOrDefault(common.EnvSchemaPath, orDefault(config.Model.SchemaPath, common.DefaultSchemaPath)),
		Threshold:        getFloatFromEnvOrConfig(common.EnvThreshold, config.Model.Threshold, common.DefaultThreshold),
		APIPort:          getIntFromEnvOrConfig(common.EnvAPIPort, config.Server.APIPort, common.DefaultAPIPort),
		DashboardPort:    getIntFromEnvOrConfig(common.EnvDashboardPort, config.Dashboard.Port, common.DefaultDashboardPort),
		DashboardEnabled: getBoolOrDefault(common.EnvDashboardEnabled, dashboardEnabled),
		MetricsPort:      getIntFromEnvOrConfig(common.EnvMetricsPort, config.Server.MetricsPort, common.DefaultMetricsPort),
		DataPath:         getEnvOrDefault(common.EnvDataPath, config.Storage.DataPath),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orDefault(config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, orDefault(config.Logging.Format, common.DefaultLogFormat)),
		RequestTimeout:   getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		MaxBatchSize:     getIntFromEnvOrConfig(common.EnvMaxBatchSize, config.Server.MaxBatchSize, common.DefaultMaxBatchSize),
		APIURL:           getEnvOrDefault(common.EnvAPIURL, orDefault(config.Dashboard.APIURL, common.DefaultAPIURL)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		SchemaPath:       getEnvOrDefault(common.EnvSchemaPath, common.DefaultSchemaPath),
		Threshold:        getFloatOrDefault(common.EnvThreshold, common.DefaultThreshold),
		APIPort:          getIntOrDefault(common.EnvAPIPort, common.DefaultAPIPort),
		DashboardPort:    getIntOrDefault(common.EnvDashboardPort, common.DefaultDashboardPort),
		DashboardEnabled: getBoolOrDefault(common.EnvDashboardEnabled, true),
		MetricsPort:      getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		DataPath:         os.Getenv(common.EnvDataPath), // optional, empty disables the prediction log
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		RequestTimeout:   getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestTimeout),
		MaxBatchSize:     getIntOrDefault(common.EnvMaxBatchSize, common.DefaultMaxBatchSize),
		APIURL:           getEnvOrDefault(common.EnvAPIURL, common.DefaultAPIURL),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate artifact paths
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}
	if settings.SchemaPath == "" {
		return fmt.Errorf("schema path cannot be empty")
	}

	// Validate decision threshold
	if settings.Threshold < 0 || settings.Threshold > 1 || math.IsNaN(settings.Threshold) {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", settings.Threshold)
	}

	// Validate ports
	ports := map[string]int{"API": settings.APIPort, "metrics": settings.MetricsPort}
	if settings.DashboardEnabled {
		ports["dashboard"] = settings.DashboardPort
	}
	seen := make(map[int]string, len(ports))
	for _, name := range []string{"API", "dashboard", "metrics"} {
		port, ok := ports[name]
		if !ok {
			continue
		}
		if port < common.MinPort || port > common.MaxPort {
			return fmt.Errorf("%s port must be between %d and %d, got %d", name, common.MinPort, common.MaxPort, port)
		}
		if other, dup := seen[port]; dup {
			return fmt.Errorf("%s and %s ports must differ, both are %d", other, name, port)
		}
		seen[port] = name
	}

	// Validate limits
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 5m, got %v", settings.RequestTimeout)
	}
	if settings.MaxBatchSize <= 0 || settings.MaxBatchSize > common.MaxBatchSizeLimit {
		return fmt.Errorf("max batch size must be between 1 and %d, got %d", common.MaxBatchSizeLimit, settings.MaxBatchSize)
	}

	// Validate logging
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}
	if settings.LogFormat != "console" && settings.LogFormat != "json" {
		return fmt.Errorf("log format must be console or json, got %q", settings.LogFormat)
	}

	return nil
}
