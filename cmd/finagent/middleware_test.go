package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/finagent/api/handlers"
	"github.com/BaSui01/finagent/internal/metrics"
	"github.com/BaSui01/finagent/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) handlers.Response {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	w := httptest.NewRecorder()
	Chain(okHandler(), mark("a"), mark("b"), mark("c")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	})

	t.Run("generates", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequestID()(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	})

	t.Run("preserves client id", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "client-123")
		w := httptest.NewRecorder()
		RequestID()(inner).ServeHTTP(w, r)
		assert.Equal(t, "client-123", seen)
		assert.Equal(t, "client-123", w.Header().Get("X-Request-ID"))
	})
}

func TestRecovery(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	w := httptest.NewRecorder()
	Recovery(zap.NewNop())(panicky).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/query", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth([]string{"secret"}, []string{"/health"}, zap.NewNop())(okHandler())

	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{"valid key", "/api/v1/agents", "secret", http.StatusOK},
		{"missing key", "/api/v1/agents", "", http.StatusUnauthorized},
		{"wrong key", "/api/v1/agents", "nope", http.StatusUnauthorized},
		{"skip path", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				r.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, string(types.ErrUnauthorized), decodeEnvelope(t, w).Error.Code)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())
	send := func(remote string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1002"))
	// 不同 IP 独立计数
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000"))
}

func TestCORS(t *testing.T) {
	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/query", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		CORS([]string{"https://app.example.com"})(okHandler()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		CORS([]string{"https://app.example.com"})(okHandler()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("no origins configured rejects preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/query", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		CORS(nil)(okHandler()).ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())
	handler := MetricsMiddleware(collector)(okHandler())

	for _, path := range []string{"/api/v1/agents", "/api/v1/agents", "/random/abc"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	count, err := testutil.GatherAndCount(reg, "test_http_requests_total")
	require.NoError(t, err)
	// 两个路径标签：/api/v1/agents 与 other
	assert.Equal(t, 2, count)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/query", normalizePath("/api/v1/query"))
	assert.Equal(t, "/metrics", normalizePath("/metrics"))
	assert.Equal(t, "other", normalizePath("/api/v1/query/123"))
	assert.Equal(t, "other", normalizePath("/wp-admin"))
}

func TestOTelTracing_SetsTraceID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var traceID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID, _ = types.TraceID(r.Context())
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	w := httptest.NewRecorder()
	OTelTracing()(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /ready", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
