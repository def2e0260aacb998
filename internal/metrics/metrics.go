// Package metrics provides Prometheus metrics collection for the churn
// service. It defines the prediction, failure, latency and HTTP metrics
// exposed on the metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the churn service.
type Metrics struct {
	// Prediction metrics
	Predictions       *prometheus.CounterVec // Successful predictions by label
	PredictionErrors  *prometheus.CounterVec // Failed predictions by reason
	PredictionLatency prometheus.Histogram   // End-to-end scoring latency
	PredictionScores  prometheus.Histogram   // Distribution of churn probabilities
	UnknownCategories *prometheus.CounterVec // Categorical values outside the training vocabulary
	ModelAge          prometheus.Gauge       // Age of the model artifact in seconds
	SinkErrors        prometheus.Counter     // Prediction log or feed write failures

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec   // Requests by server, route and status code
	HTTPRequestDuration *prometheus.HistogramVec // Request duration by server and route

	// Dashboard metrics
	WSClients prometheus.Gauge // Connected live feed clients
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_predictions_total",
			Help: "Total number of churn predictions made, by predicted label",
		}, []string{"label"}),
		PredictionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_prediction_errors_total",
			Help: "Total number of failed predictions, by reason",
		}, []string{"reason"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "churn_prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "churn_prediction_scores",
			Help:    "Distribution of predicted churn probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		UnknownCategories: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_unknown_categories_total",
			Help: "Categorical values not seen during training, by field",
		}, []string{"field"}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "churn_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		SinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "churn_sink_errors_total",
			Help: "Total number of predictions that could not be recorded",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_http_requests_total",
			Help: "Total number of HTTP requests handled",
		}, []string{"server", "route", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "churn_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "route"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "churn_ws_clients",
			Help: "Number of connected live prediction feed clients",
		}),
	}
}
