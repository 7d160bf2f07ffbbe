package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/session"
	"github.com/claude/gymrats/internal/templates"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller(r).Snapshot())
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	tmpl, err := s.templates.Resolve(r.Context(), scopeFromRequest(r), req.TemplateID, req.Template)
	if err != nil {
		s.writeError(w, err)
		return
	}
	started, err := s.controller(r).StartNewSession(r.Context(), tmpl)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	var req session.AddExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	c := s.controller(r)
	if err := c.AddExercise(r.Context(), req.Name, req.Sets); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c.Snapshot())
}

func (s *Server) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	ex, err := strconv.Atoi(chi.URLParam(r, "ex"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise index"})
		return
	}
	set, err := strconv.Atoi(chi.URLParam(r, "set"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid set index"})
		return
	}
	var req session.SetUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	c := s.controller(r)
	if err := c.UpdateSet(r.Context(), ex, set, req.Field, req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleToggleRest(w http.ResponseWriter, r *http.Request) {
	ex, err := strconv.Atoi(chi.URLParam(r, "ex"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise index"})
		return
	}
	seconds := s.opts.DefaultRestSeconds
	if v := r.URL.Query().Get("seconds"); v != "" {
		seconds, err = strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid seconds"})
			return
		}
	}

	st, err := s.controller(r).ToggleRest(ex, seconds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.RestToggle{ExerciseIndex: ex, Seconds: seconds, Status: st})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	sealed, err := s.controller(r).Finish(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sealed)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller(r).Cancel(r.Context()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.controller(r).History(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	report, err := models.MonthReport(entries, r.URL.Query().Get("month"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.templates.List(r.Context(), scopeFromRequest(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.Get(r.Context(), scopeFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	t.ID = ""

	saved, err := s.templates.Save(r.Context(), scopeFromRequest(r), t)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	t.ID = chi.URLParam(r, "id")

	saved, err := s.templates.Save(r.Context(), scopeFromRequest(r), t)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Delete(r.Context(), scopeFromRequest(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps domain errors to status codes: rejected input is 400, a
// request that conflicts with the session state is 409 and an unknown
// template is 404.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidExercise),
		errors.Is(err, models.ErrInvalidField),
		errors.Is(err, models.ErrInvalidTemplate),
		errors.Is(err, models.ErrInvalidMonth),
		errors.Is(err, session.ErrInvalidRestDuration),
		errors.Is(err, templates.ErrNoTemplate):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, models.ErrNotStarted),
		errors.Is(err, models.ErrSessionEnded):
		status = http.StatusConflict
	case errors.Is(err, templates.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
