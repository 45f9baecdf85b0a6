package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, fn http.HandlerFunc) (int, body) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var b body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return w.Code, b
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	for _, tt := range []struct {
		name   string
		fn     CheckFunc
		runs   int
		code   int
		status string
		checks map[string]string
	}{
		{name: "NoRuns", fn: fail("refused"), runs: 0, code: http.StatusOK, status: "ok"},
		{name: "Passing", fn: pass, runs: 3, code: http.StatusOK, status: "ok"},
		{name: "BelowThreshold", fn: fail("refused"), runs: 2, code: http.StatusOK, status: "ok"},
		{
			name: "Failing", fn: fail("refused"), runs: 3,
			code: http.StatusServiceUnavailable, status: "unhealthy",
			checks: map[string]string{"db": "refused"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("db", time.Second, tt.fn)
			runN(h.probes[Liveness][0], tt.runs)

			code, b := serve(t, h.LiveEndpoint)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, b.Status)
			assert.Equal(t, tt.checks, b.Checks)
		})
	}
}

func TestLiveEndpoint_NoChecks(t *testing.T) {
	code, b := serve(t, New().LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", b.Status)
	assert.Nil(t, b.Checks)
}

func TestReadyEndpoint_Gate(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass)

	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", b.Status)
	assert.Contains(t, b.Checks, notReadyKey)

	h.SetReady(true)
	code, b = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", b.Status)

	h.SetReady(false)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpoint_OneFailing(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass)
	h.AddReadinessCheck("cache", time.Second, fail("cache miss"))
	h.SetReady(true)
	runN(h.probes[Readiness][1], defaultFailAfter)

	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"cache": "cache miss"}, b.Checks)
	assert.False(t, h.IsReady())
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass)
	assert.False(t, h.IsReady())

	h.SetReady(true)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestProbe_Recovery(t *testing.T) {
	down := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(2, 2))
	p := h.probes[Liveness][0]

	runN(p, 2)
	ok, msg := p.state()
	assert.False(t, ok)
	assert.Equal(t, "down", msg)

	down = false
	runN(p, 1)
	ok, _ = p.state()
	assert.False(t, ok, "one success is below recoverAfter")

	runN(p, 1)
	ok, msg = p.state()
	assert.True(t, ok)
	assert.Empty(t, msg)
}

func TestWithThresholds_IgnoresNonPositive(t *testing.T) {
	h := New()
	h.AddLivenessCheck("x", time.Second, pass, WithThresholds(0, -1))
	p := h.probes[Liveness][0]
	assert.Equal(t, defaultFailAfter, p.failAfter)
	assert.Equal(t, defaultRecoverAfter, p.recoverAfter)
}

func TestProbe_Timeout(t *testing.T) {
	h := New()
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithThresholds(1, 1))
	p := h.probes[Readiness][0]
	runN(p, 1)

	ok, msg := p.state()
	assert.False(t, ok)
	assert.Equal(t, context.DeadlineExceeded.Error(), msg)
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("boom", time.Second, fail("boom"), WithThresholds(1, 1))
	h.Start(context.Background(), 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		ok, _ := h.probes[Liveness][0].state()
		return !ok
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, fail("err"))
	h.AddReadinessCheck("ready", time.Second, pass)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(stubPinger{})(context.Background()))

	err := PingCheck(stubPinger{err: errors.New("refused")})(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
