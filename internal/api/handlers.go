package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/logging"
	"github.com/roach88/circlesync/internal/schema"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store().Ping(r.Context()); err != nil {
		logging.WithContext(r.Context(), s.logger).Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePull serves GET /sync/changes?circleId=&since=&limit=.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	circleID := q.Get("circleId")
	if circleID == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, "circleId is required")
		return
	}

	var since *ir.Timestamp
	if raw := q.Get("since"); raw != "" {
		ts, err := ir.ParseTimestamp(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, codeInvalidInput, "since must be an ISO 8601 timestamp")
			return
		}
		since = &ts
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, codeInvalidInput, "limit must be a positive integer")
			return
		}
		limit = n
	}

	resp, err := s.engine.Pull(r.Context(), circleID, UserID(r.Context()), since, limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePush serves POST /sync/push. Per-change failures are part of the
// 200 body; only request-level failures produce an error status.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, codeInvalidInput, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, "failed to read request body")
		return
	}

	if err := s.validator.ValidatePushRequest(body); err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			writeSchemaError(w, r, verr)
			return
		}
		s.internalError(w, r, err)
		return
	}

	var req ir.PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, "invalid JSON body")
		return
	}

	resp, err := s.engine.Push(r.Context(), req.CircleID, UserID(r.Context()), req.Changes)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFullSync serves GET /sync/full?circleId=.
func (s *Server) handleFullSync(w http.ResponseWriter, r *http.Request) {
	circleID := r.URL.Query().Get("circleId")
	if circleID == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, "circleId is required")
		return
	}

	snap, err := s.engine.FullSync(r.Context(), circleID, UserID(r.Context()))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Status(r.Context(), UserID(r.Context()))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
