package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeSweeps struct {
	calls int
	grace time.Duration
	res   model.SweepResult
	err   error
}

func (f *fakeSweeps) Sweep(_ context.Context, _ time.Time, grace time.Duration) (model.SweepResult, error) {
	f.calls++
	f.grace = grace
	return f.res, f.err
}

type fakeSecrets struct {
	secret  string
	locked  bool
	err     error
	clients []string
}

func (f *fakeSecrets) CheckSecret(_ context.Context, client string, candidates ...string) error {
	f.clients = append(f.clients, client)
	if f.err != nil {
		return f.err
	}
	if f.locked {
		return fmt.Errorf("%w: retry in 1m", errs.ErrLocked)
	}
	for _, c := range candidates {
		if c == f.secret {
			return nil
		}
	}
	return errs.ErrUnauthorized
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newRouter(t *testing.T, sw *fakeSweeps, sec *fakeSecrets, opts ...func(*Options)) *gin.Engine {
	t.Helper()
	o := Options{Sweeps: sw, Secrets: sec, Grace: time.Hour, Log: zaptest.NewLogger(t)}
	for _, fn := range opts {
		fn(&o)
	}
	return NewRouter(o)
}

func do(r http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestCron_Unauthorized(t *testing.T) {
	sw := &fakeSweeps{}
	r := newRouter(t, sw, &fakeSecrets{secret: "s3cret"})

	for _, auth := range []string{"", "Bearer nope", "Basic s3cret", "s3cret"} {
		w := do(r, http.MethodPost, "/api/cron/reminders", auth)
		require.Equal(t, http.StatusUnauthorized, w.Code, "auth=%q", auth)
		require.Equal(t, false, decode(t, w)["ok"])
	}
	require.Zero(t, sw.calls, "sweep must not run before auth")
}

func TestCron_OK(t *testing.T) {
	sw := &fakeSweeps{res: model.SweepResult{Candidates: 5, Created: 3, Duplicates: 1, Failed: 1}}
	sec := &fakeSecrets{secret: "s3cret"}
	r := newRouter(t, sw, sec)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := do(r, method, "/api/cron/reminders", "Bearer s3cret")
		require.Equal(t, http.StatusOK, w.Code)
		m := decode(t, w)
		require.Equal(t, true, m["ok"])
		require.Equal(t, 3.0, m["created"])
		require.Equal(t, 5.0, m["candidates"])
		require.Equal(t, 1.0, m["duplicates"])
		require.Equal(t, 1.0, m["failed"])
		require.Equal(t, false, m["truncated"])
	}
	require.Equal(t, 2, sw.calls)
	require.Equal(t, time.Hour, sw.grace)
	require.NotEmpty(t, sec.clients[0])
}

func TestCron_SecretHeader(t *testing.T) {
	sw := &fakeSweeps{}
	r := newRouter(t, sw, &fakeSecrets{secret: "s3cret"})

	req := httptest.NewRequest(http.MethodPost, "/api/cron/reminders", nil)
	req.Header.Set("X-Cron-Secret", "s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, sw.calls)
}

func postFrom(r http.Handler, remote, forwarded string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/cron/reminders", nil)
	req.RemoteAddr = remote
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set("X-Forwarded-For", forwarded)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCron_ForwardedForIgnoredByDefault(t *testing.T) {
	sec := &fakeSecrets{secret: "s3cret"}
	r := newRouter(t, &fakeSweeps{}, sec)

	for i := 0; i < 3; i++ {
		w := postFrom(r, "203.0.113.7:4100", fmt.Sprintf("10.0.0.%d", i))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	require.Equal(t, []string{"203.0.113.7", "203.0.113.7", "203.0.113.7"}, sec.clients)
}

func TestCron_ForwardedForFromTrustedProxy(t *testing.T) {
	sec := &fakeSecrets{secret: "s3cret"}
	r := newRouter(t, &fakeSweeps{}, sec, func(o *Options) { o.TrustedProxies = []string{"203.0.113.0/24"} })

	postFrom(r, "203.0.113.7:4100", "198.51.100.9")
	postFrom(r, "192.0.2.1:4100", "198.51.100.9")
	require.Equal(t, []string{"198.51.100.9", "192.0.2.1"}, sec.clients)
}

func TestCron_SweepError(t *testing.T) {
	sw := &fakeSweeps{err: errors.New("pg: connection refused")}
	r := newRouter(t, sw, &fakeSecrets{secret: "s3cret"})

	w := do(r, http.MethodPost, "/api/cron/reminders", "bearer s3cret")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, false, decode(t, w)["ok"])
	require.NotContains(t, w.Body.String(), "connection refused")
}

func TestCron_LockedAndCheckerFailure(t *testing.T) {
	sw := &fakeSweeps{}
	r := newRouter(t, sw, &fakeSecrets{secret: "s3cret", locked: true})
	w := do(r, http.MethodPost, "/api/cron/reminders", "Bearer s3cret")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	r = newRouter(t, sw, &fakeSecrets{err: errors.New("db down")})
	w = do(r, http.MethodPost, "/api/cron/reminders", "Bearer s3cret")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Zero(t, sw.calls)
}

func TestHealthz(t *testing.T) {
	r := newRouter(t, &fakeSweeps{}, &fakeSecrets{})
	w := do(r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	r = newRouter(t, &fakeSweeps{}, &fakeSecrets{}, func(o *Options) { o.DB = fakePinger{} })
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)

	r = newRouter(t, &fakeSweeps{}, &fakeSecrets{}, func(o *Options) { o.DB = fakePinger{err: errors.New("down")} })
	w = do(r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "unavailable", decode(t, w)["status"])
}

func TestMetrics(t *testing.T) {
	r := newRouter(t, &fakeSweeps{}, &fakeSecrets{})
	require.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/metrics", "").Code)

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "garagekeeper_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	r = newRouter(t, &fakeSweeps{}, &fakeSecrets{}, func(o *Options) { o.Gatherer = reg })
	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "garagekeeper_test_total 1"))
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("  Bearer   abc  ")
	require.True(t, ok)
	require.Equal(t, "abc", tok)

	for _, h := range []string{"", "Bearer", "Bearer  ", "Token abc"} {
		_, ok := bearerToken(h)
		require.False(t, ok, h)
	}
}
