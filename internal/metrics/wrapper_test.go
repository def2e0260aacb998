package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_PredictionsByLabel(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.PredictionsInc(1)
	wrapper.PredictionsInc(1)
	wrapper.PredictionsInc(0)

	if got := testutil.ToFloat64(metrics.Predictions.WithLabelValues(LabelChurn)); got != 2 {
		t.Errorf("Expected 2 churn predictions, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Predictions.WithLabelValues(LabelStay)); got != 1 {
		t.Errorf("Expected 1 stay prediction, got %f", got)
	}
}

func TestMetricsWrapper_Failures(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.FailuresInc("validation")
	wrapper.FailuresInc("validation")
	wrapper.FailuresInc("input_shape")
	wrapper.SinkErrorsInc()

	if got := testutil.ToFloat64(metrics.PredictionErrors.WithLabelValues("validation")); got != 2 {
		t.Errorf("Expected 2 validation failures, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.PredictionErrors.WithLabelValues("input_shape")); got != 1 {
		t.Errorf("Expected 1 shape failure, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.SinkErrors); got != 1 {
		t.Errorf("Expected 1 sink error, got %f", got)
	}
}

func TestMetricsWrapper_UnknownCategories(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.UnknownCategoryInc("Contract")
	wrapper.UnknownCategoryInc("Contract")
	wrapper.UnknownCategoryInc("Internet Service")

	if got := testutil.ToFloat64(metrics.UnknownCategories.WithLabelValues("Contract")); got != 2 {
		t.Errorf("Expected 2 unknown contracts, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.UnknownCategories); got != 2 {
		t.Errorf("Expected 2 label sets, got %d", got)
	}
}

func TestMetricsWrapper_Histograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	testValues := []float64{0.001, 0.005, 0.01, 0.05, 0.1}
	for _, value := range testValues {
		wrapper.LatencyObserve(value)
		wrapper.ScoreObserve(value * 5)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	counts := map[string]uint64{}
	for _, mf := range families {
		if h := mf.GetMetric()[0].GetHistogram(); h != nil {
			counts[mf.GetName()] = h.GetSampleCount()
		}
	}
	for _, name := range []string{"churn_prediction_latency_seconds", "churn_prediction_scores"} {
		if counts[name] != uint64(len(testValues)) {
			t.Errorf("Expected %d observations for %s, got %d", len(testValues), name, counts[name])
		}
	}
}

func TestMetricsWrapper_Gauges(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.ModelAgeSet(3600.0)
	if got := testutil.ToFloat64(metrics.ModelAge); got != 3600.0 {
		t.Errorf("Expected model age 3600.0, got %f", got)
	}

	clients := wrapper.WSClients()
	clients.Add(1)
	clients.Add(1)
	clients.Add(-1)
	if got := testutil.ToFloat64(metrics.WSClients); got != 1 {
		t.Errorf("Expected 1 ws client, got %f", got)
	}
	clients.Set(0)
	if got := testutil.ToFloat64(metrics.WSClients); got != 0 {
		t.Errorf("Expected 0 ws clients, got %f", got)
	}
}

func TestMetricsWrapper_ObserveRequest(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.ObserveRequest("api", "/predict", 200, 15*time.Millisecond)
	wrapper.ObserveRequest("api", "/predict", 400, time.Millisecond)
	wrapper.ObserveRequest("api", "/predict", 200, time.Millisecond)

	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("api", "/predict", "200")); got != 2 {
		t.Errorf("Expected 2 OK requests, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("api", "/predict", "400")); got != 1 {
		t.Errorf("Expected 1 bad request, got %f", got)
	}
}

func TestNewWithRegistry_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic registering metrics twice on one registry")
		}
	}()
	NewWithRegistry(registry)
}
