package intent

import (
	"encoding/json"
	"errors"
	"net/http"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/gorilla/mux"
)

type createRequest struct {
	Name   string              `json:"name"`
	Engine v1alpha1.EngineType `json:"engine"`
	Owner  string              `json:"owner,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity := callerIdentity(r)
	if !s.createLimiter.Allow(identity) {
		s.writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	snapshot, created, err := s.svc.Create(r.Context(), req.Name, req.Engine, req.Owner, identity)
	if err != nil {
		s.writeCreateError(w, err)
		return
	}
	if created {
		s.metrics.storesCreated.Inc()
		s.audit.record("CREATE", req.Name, identity)
	}
	s.writeJSON(w, http.StatusCreated, snapshot)
}

func (s *Server) writeCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidEngine):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrOwnerConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrQuotaExceeded):
		s.writeError(w, http.StatusForbidden, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	identity := callerIdentity(r)

	snapshot, err := s.svc.Get(r.Context(), name, identity)
	if err != nil {
		s.writeGetError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) writeGetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		s.writeError(w, http.StatusForbidden, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	identity := callerIdentity(r)
	list, err := s.svc.List(r.Context(), identity)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"stores": list})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	identity := callerIdentity(r)

	if !s.deleteLimiter.Allow(identity) {
		s.writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	if err := s.svc.Delete(r.Context(), name, identity); err != nil {
		if errors.Is(err, ErrForbidden) {
			s.writeError(w, http.StatusForbidden, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.storesDeleted.Inc()
	s.audit.record("DELETE", name, identity)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	identity := callerIdentity(r)

	logs, err := s.svc.Logs(r.Context(), name, identity)
	if err != nil {
		s.writeGetError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.bus.Degraded() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"status": status, "bus": status})
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"log": s.audit.snapshot()})
}
