package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestMean checks the arithmetic mean, including the reference scenario
// multiset, and order independence.
func TestMean(t *testing.T) {
	require := require.New(t)

	agg := Mean()

	got, err := agg.Aggregate([]float64{100.0, 101.0, 99.5, 100.5})
	require.NoError(err)
	require.Equal(100.25, got)

	// Permuted input yields the bit-identical result.
	permuted, err := agg.Aggregate([]float64{99.5, 100.5, 101.0, 100.0})
	require.NoError(err)
	require.Equal(got, permuted)

	_, err = agg.Aggregate(nil)
	require.ErrorIs(err, ErrNoObservations)
}

// TestMedian checks odd and even multisets and order independence.
func TestMedian(t *testing.T) {
	require := require.New(t)

	agg := Median()

	odd, err := agg.Aggregate([]float64{3, 1, 2})
	require.NoError(err)
	require.Equal(2.0, odd)

	even, err := agg.Aggregate([]float64{100.0, 101.0, 99.5, 100.5})
	require.NoError(err)
	require.Equal(100.25, even)

	permuted, err := agg.Aggregate([]float64{101.0, 99.5, 100.5, 100.0})
	require.NoError(err)
	require.Equal(even, permuted)

	_, err = agg.Aggregate([]float64{})
	require.ErrorIs(err, ErrNoObservations)
}

// TestHTTPSource exercises the quote endpoint contract: query parameters,
// happy path, missing price field, and non-200 status.
func TestHTTPSource(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	// Happy path.
	{
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal("BTC", r.URL.Query().Get("currency"))
			require.Equal("USD", r.URL.Query().Get("convert"))
			w.Write([]byte(`{"price": 42000.5}`))
		}))
		defer srv.Close()

		src := NewHTTPSource("testapi", srv.URL, time.Second)
		require.Equal("testapi", src.APIID())

		got, err := src.GetPrice(ctx, "BTC", "USD")
		require.NoError(err)
		require.Equal(42000.5, got)
	}

	// Missing price field fails rather than observing zero.
	{
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		_, err := NewHTTPSource("testapi", srv.URL, time.Second).GetPrice(ctx, "BTC", "USD")
		require.Error(err)
	}

	// Upstream error propagates.
	{
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewHTTPSource("testapi", srv.URL, time.Second).GetPrice(ctx, "BTC", "USD")
		require.Error(err)
	}
}

// TestStatic checks the fixed-table source.
func TestStatic(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	src := NewStatic(map[string]float64{"BTC/USD": 100.5})

	got, err := src.GetPrice(ctx, "BTC", "USD")
	require.NoError(err)
	require.Equal(100.5, got)

	_, err = src.GetPrice(ctx, "ETH", "USD")
	require.Error(err)
}
