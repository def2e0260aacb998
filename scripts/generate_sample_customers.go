package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"

	"churn-service/internal/common"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Generates a labelled CSV of synthetic customers for churneval. Churn is
// drawn from a simple logistic model of the usual Telco risk factors.
func main() {
	var (
		output = flag.String("output", "data/sample_customers.csv", "Output CSV file")
		count  = flag.Int("n", 1000, "Number of customers to generate")
		seed   = flag.Int64("seed", 42, "Random seed")
		nulls  = flag.Float64("nulls", 0.02, "Fraction of Total Charges left blank")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	file, err := os.Create(*output)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer file.Close()

	rng := rand.New(rand.NewSource(*seed))
	writer := csv.NewWriter(file)

	header := append([]string{
		common.FieldTenureMonths, common.FieldMonthlyCharges, common.FieldTotalCharges,
		common.FieldContract, common.FieldPaymentMethod, common.FieldInternetService,
	}, common.ServiceFields...)
	header = append(header, "Churn Value")
	if err := writer.Write(header); err != nil {
		log.Fatal().Err(err).Msg("Failed to write header")
	}

	churned := 0
	for i := 0; i < *count; i++ {
		row, label := generateCustomer(rng, *nulls)
		churned += label
		if err := writer.Write(append(row, strconv.Itoa(label))); err != nil {
			log.Fatal().Err(err).Msg("Failed to write customer")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Fatal().Err(err).Msg("Failed to flush CSV")
	}

	log.Info().
		Str("file", *output).
		Int("customers", *count).
		Int("churned", churned).
		Msg("Sample customers generated")
}

func generateCustomer(rng *rand.Rand, nullRate float64) ([]string, int) {
	contract := pick(rng, common.ContractChoices, 0.55, 0.21, 0.24)
	payment := pick(rng, common.PaymentMethodChoices, 0.34, 0.23, 0.22, 0.21)
	internet := pick(rng, common.InternetServiceChoices, 0.44, 0.34, 0.22)

	tenure := float64(rng.Intn(73))
	if contract == common.ContractTwoYear {
		tenure = math.Min(72, tenure+float64(rng.Intn(24)))
	}

	monthly := 20 + rng.Float64()*15
	services := make([]string, len(common.ServiceFields))
	for i := range services {
		services[i] = common.ServiceNo
		if rng.Float64() < 0.4 {
			services[i] = common.ServiceYes
			monthly += 5 + rng.Float64()*5
		}
	}
	if internet == "Fiber optic" {
		monthly += 20
	}
	total := monthly * tenure * (0.95 + rng.Float64()*0.1)

	z := -1.2 - 0.04*tenure + 0.015*monthly
	switch contract {
	case common.ContractOneYear:
		z -= 1.0
	case common.ContractTwoYear:
		z -= 2.0
	}
	if payment == "Electronic check" {
		z += 0.5
	}
	if internet == "Fiber optic" {
		z += 0.6
	}
	label := 0
	if rng.Float64() < 1/(1+math.Exp(-z)) {
		label = 1
	}

	totalCell := fmt.Sprintf("%.2f", total)
	if rng.Float64() < nullRate {
		totalCell = ""
	}
	row := []string{
		strconv.Itoa(int(tenure)),
		fmt.Sprintf("%.2f", monthly),
		totalCell,
		contract,
		payment,
		internet,
	}
	return append(row, services...), label
}

// pick draws one of choices with the given weights.
func pick(rng *rand.Rand, choices []string, weights ...float64) string {
	r := rng.Float64()
	for i, w := range weights {
		if r < w {
			return choices[i]
		}
		r -= w
	}
	return choices[len(choices)-1]
}
