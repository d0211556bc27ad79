package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/printlog-cli/internal/guard"
	"github.com/sells-group/printlog-cli/internal/lock"
	"github.com/sells-group/printlog-cli/internal/metrics"
	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/monitoring"
	"github.com/sells-group/printlog-cli/internal/sheet"
)

type stubSweeper struct {
	calls atomic.Int32
	res   *model.SweepResult
	err   error
}

func (s *stubSweeper) Sweep(context.Context) (*model.SweepResult, error) {
	s.calls.Add(1)
	return s.res, s.err
}

type stubGuard struct{}

func (stubGuard) Check(_ context.Context, device string) (*guard.Decision, error) {
	if device == "broken" {
		return nil, errors.New("sheet unavailable")
	}
	return &guard.Decision{Device: device, Verdict: guard.VerdictAuthorized}, nil
}

type stubHealth struct {
	hours int
	err   error
}

func (s *stubHealth) Collect(_ context.Context, hours int) (*monitoring.HealthSnapshot, error) {
	s.hours = hours
	if s.err != nil {
		return nil, s.err
	}
	return &monitoring.HealthSnapshot{SweepTotal: 3, SweepComplete: 3, LookbackHours: hours}, nil
}

func testSheets() *sheet.MemoryStore {
	return sheet.NewMemory(map[string][][]any{
		"Authorized People": {
			{"First", "Last", "Email"},
			{"Ada", "Lovelace", "ada@example.org"},
		},
	})
}

func TestHealthEndpoint(t *testing.T) {
	h := buildRouter(routerDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSweepEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		res    *model.SweepResult
		err    error
		status int
	}{
		{"complete", &model.SweepResult{Status: model.SweepStatusComplete, Notified: 2}, nil, http.StatusOK},
		{"lock held", &model.SweepResult{Status: model.SweepStatusSkipped}, lock.ErrTimeout, http.StatusConflict},
		{"failed", &model.SweepResult{Status: model.SweepStatusFailed}, errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw := &stubSweeper{res: tt.res, err: tt.err}
			h := buildRouter(routerDeps{Sweeper: sw})

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sweep", nil))

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, int32(1), sw.calls.Load())
			if tt.status != http.StatusInternalServerError {
				var res model.SweepResult
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
				assert.Equal(t, tt.res.Status, res.Status)
			}
		})
	}
}

func TestSweepEndpoint_MethodNotAllowed(t *testing.T) {
	h := buildRouter(routerDeps{Sweeper: &stubSweeper{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sweep", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestSweepEndpoint_NotConfigured(t *testing.T) {
	h := buildRouter(routerDeps{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sweep", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMatchEndpoint(t *testing.T) {
	h := buildRouter(routerDeps{Sheets: testSheets(), ReferenceSheet: "Authorized People"})

	tests := []struct {
		query string
		want  string
	}{
		{"first=ada&last=LOVELACE", "ada@example.org"},
		{"first=Grace&last=Hopper", model.NotAuthorized},
		{"first=Ada", model.NotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/match?"+tt.query, nil))
			require.Equal(t, http.StatusOK, rr.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["value"])
		})
	}
}

func TestMatchEndpoint_MissingReferenceSheet(t *testing.T) {
	h := buildRouter(routerDeps{Sheets: testSheets(), ReferenceSheet: "Nope"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/match?first=a&last=b", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestCheckEndpoint(t *testing.T) {
	h := buildRouter(routerDeps{Guard: stubGuard{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check?device=Printer+1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var d guard.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	assert.Equal(t, "Printer 1", d.Device)
	assert.Equal(t, guard.VerdictAuthorized, d.Verdict)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check?device=broken", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveSweep(&model.SweepResult{Status: model.SweepStatusComplete, Notified: 1})

	h := buildRouter(routerDeps{Gatherer: reg})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `printlog_sweeps_total{status="complete"} 1`))
}

func TestCORSPreflight(t *testing.T) {
	h := buildRouter(routerDeps{Sweeper: &stubSweeper{}})

	req := httptest.NewRequest(http.MethodOptions, "/sweep", nil)
	req.Header.Set("Origin", "https://lab.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunScheduler_SweepsUntilCancelled(t *testing.T) {
	sw := &stubSweeper{res: &model.SweepResult{}, err: lock.ErrTimeout}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runScheduler(ctx, sw, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return sw.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	sw := &stubSweeper{res: &model.SweepResult{}}
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: buildRouter(routerDeps{Sweeper: sw})}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, srv, sw, time.Hour) }()

	require.Eventually(t, func() bool { return sw.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestSweepHealthEndpoint(t *testing.T) {
	t.Run("default window", func(t *testing.T) {
		hc := &stubHealth{}
		h := buildRouter(routerDeps{Health: hc, LookbackHours: 12})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/sweeps", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 12, hc.hours)
		var snap monitoring.HealthSnapshot
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
		assert.Equal(t, 3, snap.SweepComplete)
	})

	t.Run("hours override", func(t *testing.T) {
		hc := &stubHealth{}
		h := buildRouter(routerDeps{Health: hc})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/sweeps?hours=48", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 48, hc.hours)
	})

	t.Run("bad hours", func(t *testing.T) {
		h := buildRouter(routerDeps{Health: &stubHealth{}})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/sweeps?hours=abc", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("collector error", func(t *testing.T) {
		h := buildRouter(routerDeps{Health: &stubHealth{err: errors.New("db locked")}})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/sweeps", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		rr := httptest.NewRecorder()
		buildRouter(routerDeps{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/sweeps", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestServe_RunsBackgroundLoops(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: buildRouter(routerDeps{})}

	var started, stopped atomic.Bool
	loop := func(ctx context.Context) {
		started.Store(true)
		<-ctx.Done()
		stopped.Store(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, srv, nil, 0, loop) }()

	require.Eventually(t, started.Load, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
		assert.True(t, stopped.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}
