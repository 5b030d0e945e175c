package main

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motionshield/internal/config"
	"github.com/banshee-data/motionshield/internal/publish"
	"github.com/banshee-data/motionshield/internal/shield"
	"github.com/banshee-data/motionshield/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	tc := config.EmptyTuningConfig()
	tc.NbJoints = intPtr(2)
	tc.LinkLengths = []float64{0.5, 0.5}
	tc.LinkRadii = []float64{0.05, 0.05}
	require.NoError(t, tc.Validate())

	sh, human, err := buildShield(tc, publish.NewChanPublisher(16))
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(t.TempDir(), "flight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewServer(sh, human, db, tc)
}

func intPtr(v int) *int { return &v }

func TestSubmitGoalAccepted(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	body := `{"q": [0.5, 0.2], "dq": [0, 0]}`
	req := httptest.NewRequest(http.MethodPost, "/goal", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["goal_id"])

	goals, err := srv.db.Goals(10)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.True(t, goals[0].Accepted)
}

func TestSubmitGoalRejected(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	// Joint velocity above the configured limit.
	body := `{"q": [0.5, 0.2], "dq": [99, 0]}`
	req := httptest.NewRequest(http.MethodPost, "/goal", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	goals, err := srv.db.Goals(10)
	require.NoError(t, err)
	require.Len(t, goals, 1, "rejected goals are logged too")
	assert.False(t, goals[0].Accepted)
	assert.NotEmpty(t, goals[0].Error)
}

func TestSubmitGoalDegrees(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	body := `{"q": [90, 0], "units": "deg"}`
	req := httptest.NewRequest(http.MethodPost, "/goal", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	goals, err := srv.db.Goals(10)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.InDelta(t, math.Pi/2, goals[0].Q[0], 1e-12, "degrees are converted before submission")
}

func TestSubmitGoalInvalidUnits(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	body := `{"q": [0.5, 0.2], "units": "furlongs"}`
	req := httptest.NewRequest(http.MethodPost, "/goal", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitGoalBadPayload(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/goal", strings.NewReader("{oops"))
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/goal", nil)
	rec = httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHumanMeasurement(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	body := `{"points": [{"x": 2, "y": 0, "z": 0}, {"x": 2, "y": 0, "z": 1.8}]}`
	req := httptest.NewRequest(http.MethodPost, "/human", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	caps, err := srv.human.Volumes(0.1)
	require.NoError(t, err)
	assert.NotEmpty(t, caps)

	req = httptest.NewRequest(http.MethodPost, "/human", strings.NewReader(`{"points": []}`))
	rec = httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "starting", resp.State, "no cycle has run yet")
	assert.NotEmpty(t, resp.Version)

	srv.noteCycle(shield.CycleResult{
		Cycle:  7,
		Safe:   true,
		State:  shield.StateNormal,
		PathS:  1.5,
		PathDS: 1.0,
	})

	rec = httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 7, resp.Cycle)
	assert.Equal(t, "normal", resp.State)
	assert.True(t, resp.Safe)
	assert.InDelta(t, 1.5, resp.PathS, 1e-12)
}

func TestListCycles(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/cycles?limit=nope", nil)
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cycles?limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigEndpoint(t *testing.T) {
	t.Parallel()

	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got config.TuningConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.NbJoints)
	assert.Equal(t, 2, *got.NbJoints)
}
