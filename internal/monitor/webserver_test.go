package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/touch.report/internal/skin"
)

// newTestServer builds a server around a small 2x2 pipeline that has been
// calibrated on a flat frame of 10s.
func newTestServer(t *testing.T) (*WebServer, *skin.Pipeline) {
	t.Helper()

	params := skin.DefaultParams()
	params.CalibrationDurationFrames = 2
	pl := skin.NewPipeline(2, 2, params)

	require.True(t, pl.BeginCalibration())
	flat := skin.Frame{10, 10, 10, 10}
	pl.Ingest(flat)
	pl.Ingest(flat)
	require.Equal(t, skin.CalibrationReady, pl.State())

	ws := NewWebServer(WebServerConfig{
		Address:   ":0",
		Pipeline:  pl,
		Stats:     NewCycleStats(),
		Broker:    NewFieldBroker(),
		SessionID: "test-session",
	})
	return ws, pl
}

func serve(ws *WebServer, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	ws.setupRoutes(nil).ServeHTTP(rr, req)
	return rr
}

func TestNewWebServer(t *testing.T) {
	ws, pl := newTestServer(t)
	require.NotNil(t, ws)
	assert.Equal(t, pl, ws.pipeline)
	assert.Equal(t, "test-session", ws.sessionID)
}

func TestHealthHandler(t *testing.T) {
	ws, _ := newTestServer(t)
	rr := serve(ws, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status": "ok"`)
	assert.Contains(t, rr.Body.String(), `"service": "skin"`)
}

func TestStatusPage(t *testing.T) {
	ws, _ := newTestServer(t)
	rr := serve(ws, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Touch Skin Monitor")
	assert.Contains(t, body, "test-session")
}

func TestSkinStatusHandler(t *testing.T) {
	ws, _ := newTestServer(t)
	rr := serve(ws, http.MethodGet, "/api/skin/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "ready", status["state"])
	assert.Equal(t, "test-session", status["session_id"])
	assert.EqualValues(t, 4, status["cells"])
}

func TestParamsRoundTrip(t *testing.T) {
	ws, pl := newTestServer(t)

	rr := serve(ws, http.MethodGet, "/api/skin/params", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(ws, http.MethodPost, "/api/skin/params", []byte(`{"hard_noise_floor": 22}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 22.0, pl.Params().HardNoiseFloor)

	// untouched fields keep their values
	assert.Equal(t, skin.DefaultParams().QuietCutoff, pl.Params().QuietCutoff)
}

func TestParamsRejectsInvalid(t *testing.T) {
	ws, pl := newTestServer(t)

	rr := serve(ws, http.MethodPost, "/api/skin/params", []byte(`{"baseline_learning_rate": 5}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, skin.DefaultParams().BaselineLearningRate, pl.Params().BaselineLearningRate)

	rr = serve(ws, http.MethodPost, "/api/skin/params", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCalibrateHandler(t *testing.T) {
	ws, pl := newTestServer(t)

	rr := serve(ws, http.MethodPost, "/api/skin/calibrate?duration_frames=4", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["started"])
	assert.Equal(t, "calibrating", resp["state"])
	assert.Equal(t, skin.Calibrating, pl.State())

	// second trigger while calibrating is ignored
	rr = serve(ws, http.MethodPost, "/api/skin/calibrate", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["started"])
}

func TestCalibrateRejectsBadDuration(t *testing.T) {
	ws, _ := newTestServer(t)
	rr := serve(ws, http.MethodPost, "/api/skin/calibrate?duration_frames=0", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = serve(ws, http.MethodGet, "/api/skin/calibrate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestThresholdsHandler(t *testing.T) {
	ws, pl := newTestServer(t)

	rr := serve(ws, http.MethodPost, "/api/skin/thresholds?min=5&max=120", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	p := pl.Params()
	assert.Equal(t, 5.0, p.ThresholdMin)
	assert.Equal(t, 120.0, p.ThresholdMax)
	assert.False(t, p.AutoRangeEnabled)

	rr = serve(ws, http.MethodPost, "/api/skin/thresholds?min=120&max=5", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(ws, http.MethodPost, "/api/skin/autorange?enabled=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, pl.Params().AutoRangeEnabled)
}

func TestFieldHandler(t *testing.T) {
	ws, pl := newTestServer(t)

	// no field yet
	rr := serve(ws, http.MethodGet, "/api/skin/field", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	pl.Ingest(skin.Frame{10, 10, 60, 10})

	rr = serve(ws, http.MethodGet, "/api/skin/field", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Units    string             `json:"units"`
		Snapshot skin.FieldSnapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "norm", resp.Units)
	assert.Equal(t, 2, resp.Snapshot.PeakCell)
	assert.Len(t, resp.Snapshot.Field, 4)

	// byte scale multiplies by 255; the peak cell clamps to full scale
	rr = serve(ws, http.MethodGet, "/api/skin/field?units=byte", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "byte", resp.Units)
	assert.InDelta(t, 255.0, resp.Snapshot.Field[2], 1e-9)

	rr = serve(ws, http.MethodGet, "/api/skin/field?units=furlongs", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBaselineHandler(t *testing.T) {
	ws, _ := newTestServer(t)
	rr := serve(ws, http.MethodGet, "/api/skin/baseline", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		State    string    `json:"state"`
		Baseline []float64 `json:"baseline"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.State)
	require.Len(t, resp.Baseline, 4)
	assert.Equal(t, 10.0, resp.Baseline[0])
}

func TestSessionsRequireDB(t *testing.T) {
	ws, _ := newTestServer(t)
	rr := serve(ws, http.MethodGet, "/api/skin/sessions", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	rr = serve(ws, http.MethodGet, "/api/skin/cycles", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHeatmapCharts(t *testing.T) {
	ws, pl := newTestServer(t)

	// field chart needs an emitted snapshot
	rr := serve(ws, http.MethodGet, "/debug/skin/heatmap", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	pl.Ingest(skin.Frame{10, 10, 60, 10})

	rr = serve(ws, http.MethodGet, "/debug/skin/heatmap", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "echarts"))

	rr = serve(ws, http.MethodGet, "/debug/skin/baseline", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(ws, http.MethodGet, "/debug/skin/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}
