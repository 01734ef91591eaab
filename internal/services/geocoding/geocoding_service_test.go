package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const okBody = `{
  "status": "OK",
  "results": [{
    "formatted_address": "MG Road, Bengaluru, Karnataka 560001, India",
    "geometry": {"location": {"lat": 12.9756, "lng": 77.6050}},
    "address_components": [
      {"long_name": "Bengaluru", "short_name": "Bengaluru", "types": ["locality", "political"]},
      {"long_name": "Karnataka", "short_name": "KA", "types": ["administrative_area_level_1", "political"]},
      {"long_name": "560001", "short_name": "560001", "types": ["postal_code"]},
      {"long_name": "India", "short_name": "IN", "types": ["country", "political"]}
    ]
  }]
}`

func newTestService(t *testing.T, h http.HandlerFunc) (*GeocodingService, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	return &GeocodingService{
		Client:   &http.Client{Timeout: 2 * time.Second},
		APIKey:   "test-key",
		BaseURL:  srv.URL + "/json",
		Cache:    NewMemoryCache(),
		CacheTTL: time.Hour,
		Log:      zap.NewNop(),
	}, &calls
}

func TestGeocode_OK(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MG Road, Bengaluru", r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(okBody))
	})

	res, ok := svc.Geocode(context.Background(), "  MG Road, Bengaluru ")
	require.True(t, ok)
	assert.InDelta(t, 12.9756, res.Latitude, 1e-9)
	assert.InDelta(t, 77.6050, res.Longitude, 1e-9)
	assert.Equal(t, "Bengaluru", res.City())
	assert.Equal(t, "Karnataka", res.State())
	assert.Equal(t, "560001", res.PostalCode())
	assert.Equal(t, "India", res.Country())
	assert.True(t, res.Point().Valid)
}

func TestGeocode_NotFound(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"zero results", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
		}},
		{"denied", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key","results":[]}`))
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
		{"ok without results", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"OK","results":[]}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, tt.h)
			_, ok := svc.Geocode(context.Background(), "nowhere")
			assert.False(t, ok)
		})
	}
}

func TestGeocode_TransportFailure(t *testing.T) {
	svc := &GeocodingService{
		Client:  &http.Client{Timeout: 500 * time.Millisecond},
		BaseURL: "http://127.0.0.1:1/json",
		Cache:   NewMemoryCache(),
		Log:     zap.NewNop(),
	}
	_, ok := svc.Geocode(context.Background(), "anywhere")
	assert.False(t, ok)
}

func TestGeocode_Timeout(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(okBody))
	})
	svc.Client.Timeout = 50 * time.Millisecond

	_, ok := svc.Geocode(context.Background(), "slow road")
	assert.False(t, ok)
}

func TestGeocode_BlankSkipsRequest(t *testing.T) {
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(okBody))
	})
	_, ok := svc.Geocode(context.Background(), "   ")
	assert.False(t, ok)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestGeocode_CachesOnlySuccess(t *testing.T) {
	var found atomic.Bool
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if found.Load() {
			_, _ = w.Write([]byte(okBody))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	})
	ctx := context.Background()

	_, ok := svc.Geocode(ctx, "MG Road")
	assert.False(t, ok)
	_, ok = svc.Geocode(ctx, "MG Road")
	assert.False(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))

	found.Store(true)
	_, ok = svc.Geocode(ctx, "MG Road")
	require.True(t, ok)
	// differently spaced and cased address hits the cache
	_, ok = svc.Geocode(ctx, "mg   ROAD")
	require.True(t, ok)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestReverseGeocode(t *testing.T) {
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "12.9756,77.605", r.URL.Query().Get("latlng"))
		_, _ = w.Write([]byte(okBody))
	})

	res, ok := svc.ReverseGeocode(context.Background(), 12.9756, 77.605)
	require.True(t, ok)
	assert.Equal(t, "MG Road, Bengaluru, Karnataka 560001, India", res.FormattedAddress)

	_, ok = svc.ReverseGeocode(context.Background(), 95, 0)
	assert.False(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", Result{FormattedAddress: "x"}, time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_Bounded(t *testing.T) {
	c := NewMemoryCache()
	c.maxEntries = 3
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "stale-1", Result{}, time.Second)
	c.Set(ctx, "stale-2", Result{}, time.Second)
	c.Set(ctx, "keep", Result{FormattedAddress: "kept"}, 0)

	now = now.Add(time.Minute)
	c.Set(ctx, "fresh", Result{FormattedAddress: "fresh"}, time.Hour)
	assert.Equal(t, 2, c.Len(), "expired entries swept on insert")

	c.Set(ctx, "fresh-2", Result{}, 2*time.Hour)
	c.Set(ctx, "fresh-3", Result{}, 3*time.Hour)
	assert.Equal(t, 3, c.Len())

	_, ok := c.Get(ctx, "fresh")
	assert.False(t, ok, "soonest expiry evicted first")
	res, ok := c.Get(ctx, "keep")
	require.True(t, ok, "entries without ttl go last")
	assert.Equal(t, "kept", res.FormattedAddress)

	c.Set(ctx, "fresh-3", Result{FormattedAddress: "updated"}, time.Hour)
	assert.Equal(t, 3, c.Len(), "overwriting a key does not evict")
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	require.NoError(t, rdb.Ping(ctx).Err())

	c := NewRedisCache(rdb, zap.NewNop())
	key := "test:" + time.Now().Format(time.RFC3339Nano)
	defer rdb.Del(ctx, redisKeyPrefix+key)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, Result{Latitude: 1, Longitude: 2, FormattedAddress: "x"}, time.Minute)
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "x", got.FormattedAddress)
}
