package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/qkdlab/bb84sim/bb84"
	"github.com/qkdlab/bb84sim/bb84/bloch"
	"github.com/qkdlab/bb84sim/bb84/photon"
)

// eveView is the eavesdropper configuration as clients see it, in percent.
type eveView struct {
	Active             bool    `json:"active"`
	AttackProbability  float64 `json:"attackProbability"`
	DetectionThreshold float64 `json:"detectionThreshold"`
}

func eveViewOf(c photon.EveConfig) eveView {
	return eveView{
		Active:             c.Active,
		AttackProbability:  c.AttackProbability * 100,
		DetectionThreshold: c.DetectionThreshold * 100,
	}
}

// sessionView is the JSON body describing a session.
type sessionView struct {
	ID           string               `json:"id"`
	Status       bb84.Status          `json:"status"`
	Target       int                  `json:"target"`
	Stats        bb84.Stats           `json:"stats"`
	QBER         float64              `json:"qber"`
	Verdict      bb84.Verdict         `json:"verdict"`
	KeyLength    int                  `json:"keyLength"`
	Efficiency   float64              `json:"efficiency"`
	QuantumState bloch.Info           `json:"quantumState"`
	Eavesdropper eveView              `json:"eavesdropper"`
	Keys         keysView             `json:"keys"`
	Summary      *bb84.SessionSummary `json:"summary,omitempty"`
}

// keysView shows both sifted keys as bit strings.
type keysView struct {
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver"`
	Mismatches int    `json:"mismatches"`
}

func keysViewOf(s *bb84.Session) keysView {
	sender, receiver := s.Keys()
	return keysView{
		Sender:     sender.String(),
		Receiver:   receiver.String(),
		Mismatches: sender.XOr(receiver).CountOnes(),
	}
}

func viewOf(e *entry) sessionView {
	st := e.session.Stats()
	v := sessionView{
		ID:           e.id,
		Status:       e.session.Status(),
		Target:       e.session.Target(),
		Stats:        st,
		QBER:         st.QBER(),
		Verdict:      st.Verdict(),
		KeyLength:    st.BasisMatches,
		Efficiency:   st.Efficiency(),
		QuantumState: bloch.Describe(e.session.QuantumState()),
		Eavesdropper: eveViewOf(e.session.EavesdropperConfig()),
		Keys:         keysViewOf(e.session),
	}
	if sum, ok := e.session.Summary(); ok {
		v.Summary = &sum
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.len(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	e, err := s.sessions.create()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to create session")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": e.id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(entryFrom(r)))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.remove(entryFrom(r).id)
	w.WriteHeader(http.StatusNoContent)
}

type startRequest struct {
	QubitCount *int `json:"qubitCount"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	n := s.cfg.DefaultQubits
	if req.QubitCount != nil {
		n = *req.QubitCount
	}
	e := entryFrom(r)
	if err := e.session.Start(n); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(e))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	if err := e.session.Stop(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	e.session.Reset()
	writeJSON(w, http.StatusOK, viewOf(e))
}

type quantumStateRequest struct {
	Theta float64 `json:"theta"`
	Phi   float64 `json:"phi"`
}

func (s *Server) handleSetQuantumState(w http.ResponseWriter, r *http.Request) {
	var req quantumStateRequest
	if !decode(w, r, &req) {
		return
	}
	st := entryFrom(r).session.SetQuantumState(req.Theta, req.Phi)
	writeJSON(w, http.StatusOK, bloch.Describe(st))
}

type rotateRequest struct {
	Axis    string  `json:"axis"`
	Degrees float64 `json:"degrees"`
}

func (s *Server) handleRotateQuantumState(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if !decode(w, r, &req) {
		return
	}
	axis, ok := bloch.ParseAxis(req.Axis)
	if !ok {
		writeError(w, http.StatusBadRequest, "axis must be X, Y or Z")
		return
	}
	st := entryFrom(r).session.RotateQuantumState(axis, req.Degrees)
	writeJSON(w, http.StatusOK, bloch.Describe(st))
}

type measureRequest struct {
	Basis photon.Basis `json:"basis"`
}

func (s *Server) handleMeasureQuantumState(w http.ResponseWriter, r *http.Request) {
	var req measureRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, entryFrom(r).session.MeasureQuantumState(req.Basis))
}

func (s *Server) handleSetEavesdropper(w http.ResponseWriter, r *http.Request) {
	var req eveView
	if !decode(w, r, &req) {
		return
	}
	cfg := photon.EveConfigFromPercent(req.Active, req.AttackProbability, req.DetectionThreshold)
	stored := entryFrom(r).session.SetEavesdropperConfig(cfg)
	writeJSON(w, http.StatusOK, eveViewOf(stored))
}

func (s *Server) handleSecurity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, entryFrom(r).monitor.Report())
}

// decode reads a required JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeOptional is decode, except that an empty body leaves v untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bb84.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, bb84.ErrAlreadyRunning), errors.Is(err, bb84.ErrNotRunning):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
