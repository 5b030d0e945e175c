package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motionshield/internal/config"
	"github.com/banshee-data/motionshield/internal/httputil"
	"github.com/banshee-data/motionshield/internal/reach"
	"github.com/banshee-data/motionshield/internal/shield"
	"github.com/banshee-data/motionshield/internal/store"
	"github.com/banshee-data/motionshield/internal/units"
	"github.com/banshee-data/motionshield/internal/version"
)

// Server is the HTTP admin surface: goal submission, human measurement
// ingestion, and monitoring. It never touches shield internals directly;
// status is served from the latest cycle result the control loop noted.
type Server struct {
	shield *shield.SafetyShield
	human  *reach.StaticHumanReach
	db     *store.Store
	cfg    *config.TuningConfig

	started time.Time
	last    atomic.Pointer[shield.CycleResult]
}

func NewServer(sh *shield.SafetyShield, human *reach.StaticHumanReach, db *store.Store, cfg *config.TuningConfig) *Server {
	return &Server{
		shield:  sh,
		human:   human,
		db:      db,
		cfg:     cfg,
		started: time.Now(),
	}
}

// noteCycle records the outcome of the latest control cycle for /status.
// Called from the control loop only.
func (s *Server) noteCycle(res shield.CycleResult) {
	s.last.Store(&res)
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/goal", s.submitGoalHandler)
	mux.HandleFunc("/human", s.humanHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/cycles", s.listCyclesHandler)
	mux.HandleFunc("/goals", s.listGoalsHandler)
	mux.HandleFunc("/config", s.configHandler)
	return mux
}

type goalRequest struct {
	Q     []float64 `json:"q"`
	DQ    []float64 `json:"dq"`
	Units string    `json:"units,omitempty"`
}

func (s *Server) submitGoalHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid goal payload: "+err.Error())
		return
	}
	if req.Units == "" {
		req.Units = units.RAD
	}
	if !units.IsValid(req.Units) {
		httputil.BadRequest(w, fmt.Sprintf("invalid units %q, valid units: %s", req.Units, units.GetValidUnitsString()))
		return
	}
	if req.DQ == nil {
		req.DQ = make([]float64, len(req.Q))
	}
	q := units.SliceToRadians(req.Q, req.Units)
	dq := units.SliceToRadians(req.DQ, req.Units)

	id, err := s.shield.SubmitGoal(q, dq)
	rec := store.GoalRecord{
		ID:       id.String(),
		Time:     time.Now(),
		Accepted: err == nil,
		Q:        q,
		DQ:       dq,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if dberr := s.db.RecordGoal(rec); dberr != nil {
		// The goal decision stands either way; the log entry is best effort.
		httputil.InternalServerError(w, "failed to record goal: "+dberr.Error())
		return
	}

	if err != nil {
		if errors.Is(err, shield.ErrGoalRejected) {
			httputil.UnprocessableEntity(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}

	httputil.WriteJSONOK(w, map[string]string{"goal_id": id.String()})
}

type humanMeasurement struct {
	Points []struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"points"`
}

func (s *Server) humanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req humanMeasurement
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid measurement payload: "+err.Error())
		return
	}
	if len(req.Points) == 0 {
		httputil.BadRequest(w, "measurement needs at least one point")
		return
	}

	points := make([]r3.Vec, len(req.Points))
	for i, p := range req.Points {
		points[i] = r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
	}
	s.human.Update(points)
	httputil.NoContent(w)
}

type statusResponse struct {
	Version       string    `json:"version"`
	GitSHA        string    `json:"git_sha"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Cycle         uint64    `json:"cycle"`
	State         string    `json:"state"`
	Safe          bool      `json:"safe"`
	PathS         float64   `json:"path_s"`
	PathDS        float64   `json:"path_ds"`
	TrajectoryID  string    `json:"trajectory_id"`
	Q             []float64 `json:"q"`
	DQ            []float64 `json:"dq"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := statusResponse{
		Version:       version.Version,
		GitSHA:        version.GitSHA,
		UptimeSeconds: time.Since(s.started).Seconds(),
		State:         "starting",
	}
	if res := s.last.Load(); res != nil {
		resp.Cycle = res.Cycle
		resp.State = string(res.State)
		resp.Safe = res.Safe
		resp.PathS = res.PathS
		resp.PathDS = res.PathDS
		resp.TrajectoryID = res.TrajectoryID.String()
		resp.Q = res.Motion.Q
		resp.DQ = res.Motion.DQ
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listCyclesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 500
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	cycles, err := s.db.Cycles(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve cycles: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, cycles)
}

func (s *Server) listGoalsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	goals, err := s.db.Goals(100)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve goals: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, goals)
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}
