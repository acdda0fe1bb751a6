package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/logging"
	"github.com/roach88/plc/internal/metrics"
	"github.com/roach88/plc/internal/testutil"
)

// runEngine runs an engine with one output for three cycles.
func runEngine(t *testing.T, hooks ...engine.Hook) *engine.Engine {
	t.Helper()
	e := testutil.NewEngine(t, gpio.NewSimDriver(), &testutil.Alarms{}, append(hooks, testutil.StopAfter(3))...)
	valve, _, err := e.AddDigitalOutput("22", "valve", false)
	require.NoError(t, err)

	prog := engine.ProgramFuncs{ControlFunc: valve.Activate}
	require.NoError(t, e.Run(context.Background(), prog))
	return e
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler_Snapshot(t *testing.T) {
	e := runEngine(t)
	h := NewHandler(e, nil)

	rec := get(t, h, "/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		`{"cycle":3,"inputs":{"valve_status":{"falling":false,"rising":false,"state":1}},"outputs":{"valve":{"falling":false,"rising":false,"state":1}}}`,
		rec.Body.String())
}

func TestHandler_Healthz(t *testing.T) {
	e := runEngine(t)
	h := NewHandler(e, nil)

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, Health{State: "stopped", Outcome: "stopped", RunID: testutil.RunID, Cycle: 3}, health)
}

func TestHandler_HealthzBeforeRun(t *testing.T) {
	e := engine.New(gpio.NewSimDriver())
	rec := get(t, NewHandler(e, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"configuring"`)
}

func TestHandler_Metrics(t *testing.T) {
	c := metrics.New()
	e := runEngine(t, c)
	h := NewHandler(e, c.Registry())

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "plc_cycles_total 3")
}

func TestHandler_NoMetricsWithoutGatherer(t *testing.T) {
	h := NewHandler(engine.New(gpio.NewSimDriver()), nil)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, ln, NewHandler(engine.New(gpio.NewSimDriver()), nil), logging.NewNop())
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "configuring")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
