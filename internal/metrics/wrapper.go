package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsGauge is the gauge subset handed to packages that should not
// import prometheus.
type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

// Label values used for the predictions counter.
const (
	LabelChurn = "churn"
	LabelStay  = "stay"
)

// MetricsWrapper adapts Metrics to the narrow interfaces used by the
// inference, api and dashboard packages.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc(label int) {
	name := LabelStay
	if label == 1 {
		name = LabelChurn
	}
	w.m.Predictions.WithLabelValues(name).Inc()
}

func (w *MetricsWrapper) FailuresInc(reason string) {
	w.m.PredictionErrors.WithLabelValues(reason).Inc()
}

func (w *MetricsWrapper) LatencyObserve(seconds float64) {
	w.m.PredictionLatency.Observe(seconds)
}

func (w *MetricsWrapper) ScoreObserve(p float64) {
	w.m.PredictionScores.Observe(p)
}

func (w *MetricsWrapper) ModelAgeSet(seconds float64) {
	w.m.ModelAge.Set(seconds)
}

func (w *MetricsWrapper) SinkErrorsInc() {
	w.m.SinkErrors.Inc()
}

// UnknownCategoryInc satisfies features.UnknownCategoryObserver.
func (w *MetricsWrapper) UnknownCategoryInc(field string) {
	w.m.UnknownCategories.WithLabelValues(field).Inc()
}

// ObserveRequest records one finished HTTP request.
func (w *MetricsWrapper) ObserveRequest(server, route string, code int, d time.Duration) {
	w.m.HTTPRequests.WithLabelValues(server, route, strconv.Itoa(code)).Inc()
	w.m.HTTPRequestDuration.WithLabelValues(server, route).Observe(d.Seconds())
}

func (w *MetricsWrapper) WSClients() MetricsGauge {
	return &GaugeWrapper{w.m.WSClients}
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}
