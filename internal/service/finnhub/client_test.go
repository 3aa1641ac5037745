package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"FinPulse/internal/domain/models"
	"FinPulse/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := New("test-key", append([]Option{WithBaseURL(srv.URL), WithSymbolSuffix(".NS")}, opts...)...)
	c.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestLatest_ParsesLastBar(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		assert.Equal(t, "TCS.NS", r.URL.Query().Get("symbol"))
		assert.Equal(t, "D", r.URL.Query().Get("resolution"))
		assert.Equal(t, "test-key", r.Header.Get("X-Finnhub-Token"))

		from := r.URL.Query().Get("from")
		assert.Equal(t, "1772272800", from) // 2026-02-28T10:00:00Z, two days back

		_, _ = w.Write([]byte(`{"c":[3490,3512.4],"h":[3500,3520],"l":[3470,3480],"o":[3480,3500],"v":[900000,1234567],"t":[1772323200,1772409600],"s":"ok"}`))
	})

	bar, err := c.Latest(context.Background(), "TCS", 2)
	require.NoError(t, err)
	assert.Equal(t, 3512.4, bar.Close)
	assert.Equal(t, 3500.0, bar.Open)
	assert.Equal(t, 3520.0, bar.High)
	assert.Equal(t, 3480.0, bar.Low)
	assert.Equal(t, int64(1234567), bar.Volume)
	assert.Equal(t, time.Unix(1772409600, 0).UTC(), bar.Time)
}

func TestLatest_NoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"s":"no_data"}`))
	})

	_, err := c.Latest(context.Background(), "TCS", 1)
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestLatest_RateLimitIsDegraded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"API limit reached"}`))
	})

	_, err := c.Latest(context.Background(), "TCS", 1)
	assert.ErrorIs(t, err, models.ErrProviderDegraded)
}

func TestLatest_ServerErrorIsPlainFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Latest(context.Background(), "TCS", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrProviderDegraded)
	assert.NotErrorIs(t, err, models.ErrNoData)
}

func TestProfile_CombinesProfileAndMetricsAndCaches(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/stock/profile2":
			_, _ = w.Write([]byte(`{"name":"Reliance Industries","marketCapitalization":1650000.5,"finnhubIndustry":"Energy"}`))
		case "/stock/metric":
			_, _ = w.Write([]byte(`{"metric":{"peTTM":24.7}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, WithProfileCache(cache.NewMemoryCache(cache.WithMemoryCleanup(0)), time.Hour))

	for i := 0; i < 2; i++ {
		p, err := c.Profile(context.Background(), "RELIANCE")
		require.NoError(t, err)
		assert.Equal(t, "Reliance Industries", p.Name)
		require.NotNil(t, p.MarketCap)
		assert.InDelta(t, 1650000.5e6, *p.MarketCap, 1)
		require.NotNil(t, p.Sector)
		assert.Equal(t, "Energy", *p.Sector)
		require.NotNil(t, p.PERatio)
		assert.Equal(t, 24.7, *p.PERatio)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestProfile_MissingFieldsStayUnknown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stock/profile2":
			_, _ = w.Write([]byte(`{"name":"Tiny Co"}`))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	})

	p, err := c.Profile(context.Background(), "TINY")
	require.NoError(t, err)
	assert.Nil(t, p.MarketCap)
	assert.Nil(t, p.Sector)
	assert.Nil(t, p.PERatio)
}
