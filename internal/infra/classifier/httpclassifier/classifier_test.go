package httpclassifier

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/piiguard/pkg/common"
)

var fastRetry = common.RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsedTime:  time.Second,
}

func newTestClient(url string) *Client {
	return New(url, 5*time.Second, noop.NewTracerProvider().Tracer("test"), WithRetryPolicy(fastRetry))
}

func TestClient_Classify(t *testing.T) {
	text := "né: ann@corp.io"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, text, req.Text)
		assert.Equal(t, "en", req.LanguageCode)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entities":[{"type":"EMAIL","score":0.97,"begin_offset":4,"end_offset":15}]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Classify(context.Background(), text, "en")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EMAIL", got[0].Type)
	assert.InDelta(t, 0.97, got[0].Score, 1e-9)
	assert.Equal(t, "ann@corp.io", text[got[0].Begin:got[0].End])
}

func TestClient_Classify_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantErr   bool
		wantCalls int32
	}{
		{name: "server error then success", statuses: []int{http.StatusBadGateway, http.StatusOK}, wantCalls: 2},
		{name: "throttled then success", statuses: []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK}, wantCalls: 3},
		{name: "client error is permanent", statuses: []int{http.StatusBadRequest}, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				n := calls.Add(1)
				status := tt.statuses[min(int(n), len(tt.statuses))-1]
				w.WriteHeader(status)
				if status == http.StatusOK {
					_, _ = w.Write([]byte(`{"entities":[]}`))
				}
			}))
			defer srv.Close()

			got, err := newTestClient(srv.URL).Classify(context.Background(), "hello", "en")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Empty(t, got)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestClient_Classify_ThrottlingLowersRate(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"entities":[]}`))
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		limiter   *common.RateLimiter
		wantRate  float64
		wantBurst int
	}{
		{name: "limited rate is halved", limiter: common.NewRateLimiter(8, 2), wantRate: 4, wantBurst: 2},
		{name: "rate never drops below the floor", limiter: common.NewRateLimiter(0.75, 2), wantRate: minThrottledRPS, wantBurst: 2},
		{name: "unlimited stays unlimited", limiter: common.NewRateLimiter(0, 1), wantRate: math.Inf(1), wantBurst: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls.Store(0)
			c := New(srv.URL, 5*time.Second, noop.NewTracerProvider().Tracer("test"),
				WithRetryPolicy(fastRetry), WithRateLimiter(tt.limiter))

			_, err := c.Classify(context.Background(), "hello", "en")
			require.NoError(t, err)
			assert.Equal(t, int32(2), calls.Load())
			assert.Equal(t, tt.wantRate, tt.limiter.Limit())
			assert.Equal(t, tt.wantBurst, tt.limiter.Burst())
		})
	}
}

func TestClient_Classify_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Classify(context.Background(), "hello", "en")
	assert.ErrorContains(t, err, "decode")
}
