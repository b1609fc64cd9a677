package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fabric.inspect/internal/analyser"
	"github.com/banshee-data/fabric.inspect/internal/capture"
	"github.com/banshee-data/fabric.inspect/internal/workpool"
)

type fakeSource struct{}

func (fakeSource) State() analyser.State { return analyser.Running }
func (fakeSource) Ticks() int64          { return 120 }
func (fakeSource) Skipped() int64        { return 2 }
func (fakeSource) Frame() int64          { return 4 }
func (fakeSource) PoolStats() (workpool.Stats, workpool.Stats) {
	return workpool.Stats{Workers: 50, Submitted: 118}, workpool.Stats{Workers: 2, Submitted: 4, Dropped: 1}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	board := NewStatusBoard(10)
	board.Receive(1, 0.02)
	board.Receive(3, 0.08)

	s := NewServer(board, fakeSource{}).WithCaptureStats(func() capture.Stats {
		return capture.Stats{Attempts: 4, Batches: 3, Failures: 1}
	})
	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv
}

func TestSnapshot(t *testing.T) {
	s, _ := newTestServer(t)
	st := s.Snapshot()

	assert.Equal(t, "running", st.State)
	assert.Equal(t, int64(120), st.Ticks)
	assert.Equal(t, int64(4), st.Frame)
	assert.Equal(t, 3.0, st.Velocity)
	assert.Equal(t, 0.08, st.Displacement)
	assert.InDelta(t, 2.0, st.MeanVelocity, 1e-12)
	assert.InDelta(t, 1.4142135623730951, st.StdDevVelocity, 1e-12)
	assert.Equal(t, 2, st.Samples)
	assert.Equal(t, int64(1), st.Capture.Dropped)
	require.NotNil(t, st.Captures)
	assert.Equal(t, int64(3), st.Captures.Batches)
}

func TestSnapshot_SingleSample(t *testing.T) {
	board := NewStatusBoard(4)
	board.Receive(2.5, 1)
	st := NewServer(board, fakeSource{}).Snapshot()
	assert.Equal(t, 2.5, st.MeanVelocity)
	assert.Zero(t, st.StdDevVelocity)
	assert.Nil(t, st.Captures)
}

func TestStatusRoute(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/debug/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "running", st.State)
	assert.Equal(t, int64(118), st.Publish.Submitted)
}

func TestVelocityChartRoute(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/debug/velocity-chart")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Fabric movement")
	assert.Contains(t, string(body), "displacement")
}
