package api

import (
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var tokensTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fractal_model_tokens_total",
		Help: "Tokens exchanged with the model",
	},
	[]string{"model", "direction"},
)

// price is the list price of a model family in USD per million tokens.
type price struct {
	input, output float64
}

// Families are matched by substring of the model ID, so Bedrock profile
// names resolve too. Unknown models are priced as Sonnet.
var prices = []struct {
	family string
	price  price
}{
	{"opus", price{15, 75}},
	{"haiku", price{1, 5}},
	{"sonnet", price{3, 15}},
}

var defaultPrice = price{3, 15}

func priceOf(model anthropic.Model) price {
	m := string(model)
	for _, p := range prices {
		if strings.Contains(m, p.family) {
			return p.price
		}
	}
	return defaultPrice
}

// Usage is a snapshot of accumulated token usage.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Calls        int     `json:"calls"`
	CostUSD      float64 `json:"cost_usd"`
}

// UsageMeter accumulates usage across concurrent calls. The zero value is
// ready to use.
type UsageMeter struct {
	mu    sync.Mutex
	usage Usage
}

// Add records one successful call to model.
func (m *UsageMeter) Add(model anthropic.Model, input, output int64) {
	p := priceOf(model)

	m.mu.Lock()
	m.usage.InputTokens += input
	m.usage.OutputTokens += output
	m.usage.Calls++
	m.usage.CostUSD += (float64(input)*p.input + float64(output)*p.output) / 1_000_000
	m.mu.Unlock()

	tokensTotal.WithLabelValues(string(model), "input").Add(float64(input))
	tokensTotal.WithLabelValues(string(model), "output").Add(float64(output))
}

// Snapshot returns the usage so far.
func (m *UsageMeter) Snapshot() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}
