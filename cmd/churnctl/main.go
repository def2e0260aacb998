package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"churn-service/internal/api"
	"churn-service/internal/cfg"
	"churn-service/internal/client"
	"churn-service/internal/common"
	"churn-service/internal/inference"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: churnctl [-url URL] [-timeout D] <command> [flags]

commands:
  predict   score one customer
  batch     score the customers in a JSON file (-file, "-" for stdin)
  info      show the served model
  health    check the API is up
  watch     follow the dashboard's live prediction feed (-dashboard URL)
`

func main() {
	defaultURL := common.DefaultAPIURL
	if settings, err := cfg.Load(); err == nil {
		defaultURL = settings.APIURL
	}

	var (
		apiURL  = flag.String("url", defaultURL, "Prediction API base URL")
		timeout = flag.Duration("timeout", common.DefaultRequestTimeout, "Request timeout")
		verbose = flag.Bool("v", false, "Verbose logging")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "watch" {
		if err := runWatch(args, os.Stdout); err != nil {
			log.Error().Err(err).Msg("watch failed")
			os.Exit(1)
		}
		return
	}

	c := client.New(*apiURL, *timeout)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch cmd {
	case "predict":
		err = runPredict(ctx, c, args, os.Stdout)
	case "batch":
		err = runBatch(ctx, c, args, os.Stdin, os.Stdout)
	case "info":
		err = runInfo(ctx, c, os.Stdout)
	case "health":
		err = c.Health(ctx)
		if err == nil {
			fmt.Fprintln(os.Stdout, "ok")
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error().Err(err).Str("url", *apiURL).Msg("request failed")
		os.Exit(1)
	}
}

func runPredict(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	req, asJSON, err := parsePredictFlags(args)
	if err != nil {
		return err
	}

	resp, err := c.Predict(ctx, req)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, resp)
	}

	verdict := "Likely to stay"
	if resp.ChurnPrediction == 1 {
		verdict = "Likely to churn"
	}
	fmt.Fprintf(out, "Churn probability: %.1f%%\n", resp.ChurnProbability*100)
	fmt.Fprintf(out, "Prediction:        %s\n", verdict)
	fmt.Fprintf(out, "Threshold:         %g\n", resp.Threshold)
	return nil
}

// parsePredictFlags builds a request from command line flags. Service flags
// named in -services are sent as "Yes", the others as "No".
func parsePredictFlags(args []string) (api.PredictRequest, bool, error) {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	var (
		tenure   = fs.Float64("tenure", 0, "Tenure in months")
		monthly  = fs.Float64("monthly", 0, "Monthly charges")
		total    = fs.Float64("total", 0, "Total charges")
		contract = fs.String("contract", "Month-to-month", "Contract: "+strings.Join(common.ContractChoices, ", "))
		payment  = fs.String("payment", "Electronic check", "Payment method")
		internet = fs.String("internet", "Fiber optic", "Internet service: "+strings.Join(common.InternetServiceChoices, ", "))
		services = fs.String("services", "", "Comma-separated services the customer has, e.g. \"Phone Service,Tech Support\"")
		asJSON   = fs.Bool("json", false, "Print the raw JSON response")
	)
	if err := fs.Parse(args); err != nil {
		return api.PredictRequest{}, false, err
	}

	req := api.PredictRequest{
		TenureMonths:    tenure,
		MonthlyCharges:  monthly,
		TotalCharges:    total,
		Contract:        *contract,
		PaymentMethod:   *payment,
		InternetService: *internet,
	}

	flags, err := serviceFlags(*services)
	if err != nil {
		return api.PredictRequest{}, false, err
	}
	req.PhoneService = flags[common.FieldPhoneService]
	req.MultipleLines = flags[common.FieldMultipleLines]
	req.OnlineSecurity = flags[common.FieldOnlineSecurity]
	req.OnlineBackup = flags[common.FieldOnlineBackup]
	req.DeviceProtection = flags[common.FieldDeviceProtection]
	req.TechSupport = flags[common.FieldTechSupport]
	req.StreamingTV = flags[common.FieldStreamingTV]
	req.StreamingMovies = flags[common.FieldStreamingMovies]
	return req, *asJSON, nil
}

func serviceFlags(list string) (map[string]*string, error) {
	yes := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		known := false
		for _, field := range common.ServiceFields {
			if strings.EqualFold(field, name) {
				yes[field] = true
				known = true
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown service %q", name)
		}
	}

	flags := make(map[string]*string, len(common.ServiceFields))
	for _, field := range common.ServiceFields {
		v := common.ServiceNo
		if yes[field] {
			v = common.ServiceYes
		}
		flags[field] = &v
	}
	return flags, nil
}

func runBatch(ctx context.Context, c *client.Client, args []string, stdin io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	file := fs.String("file", "-", "JSON file with an array of records, \"-\" for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("failed to open batch file: %w", err)
		}
		defer f.Close()
		in = f
	}

	reqs, err := readBatch(in)
	if err != nil {
		return err
	}

	resp, err := c.PredictBatch(ctx, reqs)
	if err != nil {
		return err
	}
	return writeJSON(out, resp)
}

// readBatch accepts either a bare JSON array of records or a
// {"records": [...]} object.
func readBatch(r io.Reader) ([]api.PredictRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}

	var reqs []api.PredictRequest
	if err := json.Unmarshal(data, &reqs); err == nil {
		return reqs, nil
	}
	var wrapped api.BatchRequest
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse batch: %w", err)
	}
	return wrapped.Records, nil
}

func runInfo(ctx context.Context, c *client.Client, out io.Writer) error {
	info, err := c.ModelInfo(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, info)
}

// runWatch prints predictions from the dashboard feed until interrupted.
func runWatch(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	var (
		dashboardURL = fs.String("dashboard", envOrDefault(common.EnvDashboardURL, common.DefaultDashboardURL), "Dashboard base URL")
		ping         = fs.Duration("ping", 20*time.Second, "Keep-alive ping interval")
		asJSON       = fs.Bool("json", false, "Print each prediction as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	feed, err := client.NewFeed(*dashboardURL, *ping)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	preds := make(chan inference.Prediction, 64)
	errs := make(chan error, 16)
	go func() {
		for err := range errs {
			log.Debug().Err(err).Msg("live feed error")
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- feed.Stream(ctx, preds, errs)
		close(errs)
	}()

	fmt.Fprintf(os.Stderr, "watching %s\n", feed.URL())
	for {
		select {
		case p := <-preds:
			if *asJSON {
				if err := json.NewEncoder(out).Encode(p); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(out, formatPrediction(p))
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func formatPrediction(p inference.Prediction) string {
	verdict := "stay"
	if p.Label == 1 {
		verdict = "churn"
	}
	return fmt.Sprintf("%s  %-36s  %5.1f%%  %s", p.Timestamp.Format(time.RFC3339), p.ID, p.Probability*100, verdict)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
