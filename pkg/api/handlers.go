package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/go-chi/chi/v5"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeStoreError maps store errors to responses.
func (s *server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{"not found"})

		return
	}

	s.log.WithError(err).Error("Store query failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})
}

// handleHealth returns server health and table row counts.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountRows(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"status": "unavailable"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"counts": counts,
	})
}

func (s *server) handleListTesters(w http.ResponseWriter, r *http.Request) {
	testers, err := s.store.ListTesters(r.Context())
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, testers)
}

// handleListSessions returns the most recent sessions. ?limit= caps the
// page size.
func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"limit must be a positive integer"})

			return
		}

		limit = min(n, maxSessionLimit)
	}

	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *server) handleSessionSuites(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	runTimes, err := s.store.ListSuiteRunTimes(r.Context(), session.ID)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, runTimes)
}

func (s *server) handleSessionResults(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	results, err := s.store.ListTestResults(r.Context(), session.ID)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, results)
}

// sessionFromPath loads the session named by the {id} URL parameter. It
// writes the error response itself and returns false on failure.
func (s *server) sessionFromPath(
	w http.ResponseWriter, r *http.Request,
) (*store.TestRunSession, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid session id"})

		return nil, false
	}

	session, err := s.store.GetSession(r.Context(), uint(id))
	if err != nil {
		s.writeStoreError(w, err)

		return nil, false
	}

	return session, true
}
