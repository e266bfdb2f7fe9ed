// Package price supplies the external price observations and the
// deterministic aggregation that turns the agreed observation multiset into
// one estimate.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// ErrNoObservations is returned by aggregators on an empty multiset.
var ErrNoObservations = errors.New("no observations to aggregate")

// Source answers one price quote for a currency pair. Implementations block
// until the quote source replies or the context is cancelled.
type Source interface {
	// GetPrice returns the current price of currencyID denominated in
	// convertID.
	GetPrice(ctx context.Context, currencyID, convertID string) (float64, error)

	// APIID names the quote source for logging.
	APIID() string
}

// HTTPSource queries a JSON quote endpoint of the form
// GET <url>?currency=<id>&convert=<id> -> {"price": <number>}.
type HTTPSource struct {
	apiID  string
	url    string
	client *http.Client
}

// NewHTTPSource builds a quote client. The timeout bounds a single quote
// request; a zero timeout means none.
func NewHTTPSource(apiID, endpoint string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		apiID:  apiID,
		url:    endpoint,
		client: &http.Client{Timeout: timeout},
	}
}

// APIID implements Source.
func (s *HTTPSource) APIID() string { return s.apiID }

// GetPrice implements Source.
func (s *HTTPSource) GetPrice(ctx context.Context, currencyID, convertID string) (float64, error) {
	q := url.Values{}
	q.Set("currency", currencyID)
	q.Set("convert", convertID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build quote request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote %s/%s from %s: %w", currencyID, convertID, s.apiID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote %s/%s from %s: status %s", currencyID, convertID, s.apiID, resp.Status)
	}
	var body struct {
		Price *float64 `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode quote from %s: %w", s.apiID, err)
	}
	if body.Price == nil {
		return 0, fmt.Errorf("quote from %s: missing price field", s.apiID)
	}
	return *body.Price, nil
}

// Static serves fixed quotes from a table keyed by "currency/convert".
// Fakenet agents and tests use it.
type Static struct {
	quotes map[string]float64
}

// NewStatic builds a static source over a copy of the table.
func NewStatic(quotes map[string]float64) *Static {
	cp := make(map[string]float64, len(quotes))
	for k, v := range quotes {
		cp[k] = v
	}
	return &Static{quotes: cp}
}

// APIID implements Source.
func (s *Static) APIID() string { return "static" }

// GetPrice implements Source.
func (s *Static) GetPrice(ctx context.Context, currencyID, convertID string) (float64, error) {
	v, ok := s.quotes[currencyID+"/"+convertID]
	if !ok {
		return 0, fmt.Errorf("static source: no quote for %s/%s", currencyID, convertID)
	}
	return v, nil
}

// Aggregator folds an observation multiset into one estimate. The fold must
// be a pure function of the multiset: every agent holding the same
// observations has to produce the bit-identical float, since the estimate
// round only closes on matching payloads.
type Aggregator interface {
	// Aggregate reduces the multiset. The input slice is not modified.
	Aggregate(observations []float64) (float64, error)

	// Name labels the aggregation for logging.
	Name() string
}

type meanAggregator struct{}

// Mean returns the arithmetic-mean aggregator. Values are summed in sorted
// order so the floating-point result does not depend on input order.
func Mean() Aggregator { return meanAggregator{} }

func (meanAggregator) Name() string { return "mean" }

func (meanAggregator) Aggregate(observations []float64) (float64, error) {
	if len(observations) == 0 {
		return 0, ErrNoObservations
	}
	sorted := append([]float64(nil), observations...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted)), nil
}

type medianAggregator struct{}

// Median returns the median aggregator: middle element for odd counts, mean
// of the middle pair for even counts.
func Median() Aggregator { return medianAggregator{} }

func (medianAggregator) Name() string { return "median" }

func (medianAggregator) Aggregate(observations []float64) (float64, error) {
	if len(observations) == 0 {
		return 0, ErrNoObservations
	}
	sorted := append([]float64(nil), observations...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], nil
	}
	return (sorted[mid-1] + sorted[mid]) / 2, nil
}
