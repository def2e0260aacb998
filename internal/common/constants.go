package common

import "time"

// Raw input field names, as produced by the training data export.
const (
	FieldTenureMonths    = "Tenure Months"
	FieldMonthlyCharges  = "Monthly Charges"
	FieldTotalCharges    = "Total Charges"
	FieldContract        = "Contract"
	FieldPaymentMethod   = "Payment Method"
	FieldInternetService = "Internet Service"
)

// Service flag fields. Each holds "Yes" or "No" when present.
const (
	FieldPhoneService     = "Phone Service"
	FieldMultipleLines    = "Multiple Lines"
	FieldOnlineSecurity   = "Online Security"
	FieldOnlineBackup     = "Online Backup"
	FieldDeviceProtection = "Device Protection"
	FieldTechSupport      = "Tech Support"
	FieldStreamingTV      = "Streaming TV"
	FieldStreamingMovies  = "Streaming Movies"
)

// Engineered feature names
const (
	FeatureAvgMonthlySpend = "AvgMonthlySpend"
	FeatureIsNewCustomer   = "IsNewCustomer"
	FeatureIsLongContract  = "IsLongContract"
	FeatureServicesCount   = "ServicesCount"
)

// NumericFields are coerced to float and imputed when missing.
var NumericFields = []string{FieldTenureMonths, FieldMonthlyCharges, FieldTotalCharges}

// ServiceFields are counted into ServicesCount.
var ServiceFields = []string{
	FieldPhoneService, FieldMultipleLines, FieldOnlineSecurity, FieldOnlineBackup,
	FieldDeviceProtection, FieldTechSupport, FieldStreamingTV, FieldStreamingMovies,
}

// RequiredFields must be present in every scored record.
var RequiredFields = []string{
	FieldTenureMonths, FieldMonthlyCharges, FieldTotalCharges,
	FieldContract, FieldPaymentMethod, FieldInternetService,
}

// Category values with special meaning during preprocessing
const (
	CategoryUnknown = "Unknown"
	ServiceYes      = "Yes"
	ServiceNo       = "No"
	ContractOneYear = "One year"
	ContractTwoYear = "Two year"
)

// NewCustomerTenure is the tenure (months) below which a customer counts as new.
const NewCustomerTenure = 12

// Choice lists offered by the dashboard form.
var (
	ContractChoices        = []string{"Month-to-month", ContractOneYear, ContractTwoYear}
	PaymentMethodChoices   = []string{"Electronic check", "Mailed check", "Bank transfer (automatic)", "Credit card (automatic)"}
	InternetServiceChoices = []string{"Fiber optic", "DSL", "No"}
)

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvModelPath        = "MODEL_PATH"
	EnvSchemaPath       = "SCHEMA_PATH"
	EnvThreshold        = "CHURN_THRESHOLD"
	EnvAPIPort          = "API_PORT"
	EnvDashboardPort    = "DASHBOARD_PORT"
	EnvDashboardEnabled = "DASHBOARD_ENABLED"
	EnvMetricsPort      = "METRICS_PORT"
	EnvDataPath         = "DATA_PATH"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvRequestTimeout   = "REQUEST_TIMEOUT"
	EnvMaxBatchSize     = "MAX_BATCH_SIZE"
	EnvAPIURL           = "CHURN_API_URL"
	EnvDashboardURL     = "CHURN_DASHBOARD_URL"
)

// Configuration defaults
const (
	DefaultModelPath      = "models/churn_model.json"
	DefaultSchemaPath     = "models/features.json"
	DefaultThreshold      = 0.40
	DefaultAPIPort        = 8000
	DefaultDashboardPort  = 8501
	DefaultMetricsPort    = 9090
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultMaxBatchSize   = 500
	DefaultRequestTimeout = 10 * time.Second
	DefaultAPIURL         = "http://localhost:8000"
	DefaultDashboardURL   = "http://localhost:8501"
	DefaultRecentLimit    = 20
	DefaultRecordsDBName  = "predictions.db"
	MinPort               = 1024
	MaxPort               = 65535
	MaxBatchSizeLimit     = 10000
)
