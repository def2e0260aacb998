// Package dashboard serves the interactive churn prediction page: a form
// that scores one customer, the recent prediction history and a live feed
// of predictions made through any front end.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"churn-service/internal/common"
	"churn-service/internal/features"
	"churn-service/internal/inference"
	"churn-service/internal/ml"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const maxRecentLimit = 500

// Predictor is the part of inference.Service the dashboard depends on.
type Predictor interface {
	Infer(ctx context.Context, raw features.RawRecord) (inference.Result, error)
	Explain(res inference.Result, top int) ([]ml.Contribution, bool, error)
	Info() inference.ModelInfo
}

// History lists stored predictions, newest first.
type History interface {
	Recent(n int) ([]inference.Prediction, error)
}

// RequestObserver records finished HTTP requests.
type RequestObserver interface {
	ObserveRequest(server, route string, code int, d time.Duration)
}

// Options configure the dashboard server.
type Options struct {
	Port       int
	ExplainTop int
	Timeout    time.Duration
	Observer   RequestObserver
}

// Dashboard provides the web form and live prediction feed.
type Dashboard struct {
	predictor Predictor
	history   History
	hub       *Hub
	opts      Options
	server    *http.Server
	isRunning bool
	mu        sync.Mutex
}

// NewDashboard creates a dashboard. history may be nil when the prediction
// log is disabled.
func NewDashboard(predictor Predictor, history History, hub *Hub, opts Options) *Dashboard {
	if opts.ExplainTop <= 0 {
		opts.ExplainTop = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	d := &Dashboard{
		predictor: predictor,
		history:   history,
		hub:       hub,
		opts:      opts,
	}

	d.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      d.Router(),
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	}
	return d
}

// Router builds the dashboard routes.
func (d *Dashboard) Router() http.Handler {
	r := mux.NewRouter()
	if d.opts.Observer != nil {
		r.Use(d.observe)
	}
	r.HandleFunc("/", d.handleIndex).Methods("GET")
	r.HandleFunc("/predict", d.handlePredict).Methods("POST")
	r.HandleFunc("/api/recent", d.handleRecent).Methods("GET")
	if d.hub != nil {
		r.HandleFunc("/ws", d.hub.ServeWS).Methods("GET")
	}
	return r
}

// Start starts the dashboard server and its live feed.
func (d *Dashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("dashboard is already running")
	}

	if d.hub != nil {
		go d.hub.Run()
	}

	go func() {
		log.Info().
			Str("address", d.server.Addr).
			Msg("Starting dashboard server")

		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Dashboard server failed")
		}
	}()

	d.isRunning = true
	return nil
}

// Stop stops the dashboard server
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil
	}

	if d.hub != nil {
		d.hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown dashboard server")
		return err
	}

	d.isRunning = false
	log.Info().Msg("Dashboard stopped")
	return nil
}

// observe reports request metrics per route template. The WebSocket route
// is passed through untouched since its connection gets hijacked.
func (d *Dashboard) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if route == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		d.opts.Observer.ObserveRequest("dashboard", route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// formData is the view model of the page.
type formData struct {
	Info            inference.ModelInfo
	Contracts       []string
	PaymentMethods  []string
	InternetOptions []string
	ServiceFlags    []string
	Values          map[string]string
	Checked         map[string]bool
	Error           string
	Result          *resultView
	Recent          []inference.Prediction
}

type resultView struct {
	Percent       string
	Verdict       string
	Churn         bool
	Threshold     string
	Contributions []ml.Contribution
}

func (d *Dashboard) newFormData() formData {
	return formData{
		Info:            d.predictor.Info(),
		Contracts:       common.ContractChoices,
		PaymentMethods:  common.PaymentMethodChoices,
		InternetOptions: common.InternetServiceChoices,
		ServiceFlags:    common.ServiceFields,
		Values: map[string]string{
			common.FieldTenureMonths:   "12",
			common.FieldMonthlyCharges: "70",
			common.FieldTotalCharges:   "840",
		},
		Checked: map[string]bool{},
	}
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := d.newFormData()
	data.Recent = d.recent(common.DefaultRecentLimit)
	d.render(w, http.StatusOK, data)
}

func (d *Dashboard) handlePredict(w http.ResponseWriter, r *http.Request) {
	data := d.newFormData()
	if err := r.ParseForm(); err != nil {
		data.Error = "could not read form: " + err.Error()
		d.render(w, http.StatusBadRequest, data)
		return
	}

	raw, err := readForm(r, &data)
	if err != nil {
		data.Error = err.Error()
		d.render(w, http.StatusBadRequest, data)
		return
	}

	res, err := d.predictor.Infer(r.Context(), raw)
	if err != nil {
		status := http.StatusInternalServerError
		if inference.IsValidation(err) {
			status = http.StatusBadRequest
			data.Error = err.Error()
		} else {
			log.Error().Err(err).Msg("dashboard prediction failed")
			data.Error = "prediction failed"
		}
		d.render(w, status, data)
		return
	}

	view := &resultView{
		Percent:   formatPercent(res.Probability),
		Verdict:   "Likely to stay",
		Churn:     res.Label == 1,
		Threshold: strconv.FormatFloat(res.Threshold, 'f', -1, 64),
	}
	if view.Churn {
		view.Verdict = "Likely to churn"
	}
	if top, ok, err := d.predictor.Explain(res, d.opts.ExplainTop); err == nil && ok {
		view.Contributions = top
	}

	data.Result = view
	data.Recent = d.recent(common.DefaultRecentLimit)
	d.render(w, http.StatusOK, data)
}

func (d *Dashboard) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := common.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if n > maxRecentLimit {
			n = maxRecentLimit
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": d.recent(limit),
	})
}

func (d *Dashboard) recent(n int) []inference.Prediction {
	if d.history == nil {
		return []inference.Prediction{}
	}
	preds, err := d.history.Recent(n)
	if err != nil {
		log.Error().Err(err).Msg("failed to load recent predictions")
		return []inference.Prediction{}
	}
	return preds
}

// readForm converts the submitted form into a pipeline record, keeping the
// submitted values in data so the form re-renders with them.
func readForm(r *http.Request, data *formData) (features.RawRecord, error) {
	raw := features.RawRecord{}

	for _, field := range common.NumericFields {
		v := strings.TrimSpace(r.PostFormValue(field))
		data.Values[field] = v
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", field)
		}
		raw[field] = features.Number(f)
	}

	for _, field := range []string{common.FieldContract, common.FieldPaymentMethod, common.FieldInternetService} {
		v := r.PostFormValue(field)
		data.Values[field] = v
		if v == "" {
			return nil, fmt.Errorf("%s is required", field)
		}
		raw[field] = features.String(v)
	}

	for _, field := range common.ServiceFields {
		value := common.ServiceNo
		if r.PostFormValue(field) == common.ServiceYes {
			value = common.ServiceYes
			data.Checked[field] = true
		}
		raw[field] = features.String(value)
	}
	return raw, nil
}
