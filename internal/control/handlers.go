package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"lockpilot/internal/history"
	"lockpilot/internal/store"
	"lockpilot/internal/timer"
	logx "lockpilot/pkg/logx"
)

type createTimerRequest struct {
	Action     string             `json:"action"`
	TargetTime string             `json:"targetTime"`
	Message    string             `json:"message,omitempty"`
	Recurrence *recurrenceRequest `json:"recurrence,omitempty"`
}

type recurrenceRequest struct {
	Preset          string `json:"preset"`
	IntervalHours   int    `json:"intervalHours,omitempty"`
	IntervalMinutes int    `json:"intervalMinutes,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleCreateTimer(w http.ResponseWriter, r *http.Request) {
	var req createTimerRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	action, err := timer.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := time.Parse(time.RFC3339, strings.TrimSpace(req.TargetTime))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid targetTime, expected RFC 3339: "+err.Error())
		return
	}

	var rule *timer.Rule
	if req.Recurrence != nil {
		rule = &timer.Rule{
			Preset:          timer.Preset(strings.ToLower(strings.TrimSpace(req.Recurrence.Preset))),
			IntervalHours:   req.Recurrence.IntervalHours,
			IntervalMinutes: req.Recurrence.IntervalMinutes,
		}
	}

	t, err := s.timers.Create(action, target, rule, req.Message)
	if err != nil {
		if errors.Is(err, timer.ErrInvalidInput) || errors.Is(err, timer.ErrInvalidRule) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("create timer failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTimers(w http.ResponseWriter, _ *http.Request) {
	timers := s.timers.List()
	if timers == nil {
		timers = []timer.Timer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"timers": timers})
}

func (s *Server) handleCancelTimer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.timers.Cancel(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "timer not found")
			return
		}
		s.log.Error("cancel timer failed", logx.String("id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	fires := []history.FireRecord{}
	if s.hist != nil {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		recs, err := s.hist.Recent(r.Context(), limit)
		if err != nil {
			s.log.Warn("history read failed", logx.Err(err))
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		if recs != nil {
			fires = recs
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fires": fires})
}

func (s *Server) handleLatestRelease(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil {
		writeError(w, http.StatusServiceUnavailable, "updater disabled")
		return
	}
	prerelease := r.URL.Query().Get("channel") == "prerelease"
	release, err := s.updater.Latest(r.Context(), prerelease)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"release": release})
}

func (s *Server) handleCheckUpdate(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil {
		writeError(w, http.StatusServiceUnavailable, "updater disabled")
		return
	}
	current := r.URL.Query().Get("current")
	if current == "" {
		current = s.version
	}
	release, err := s.updater.Check(r.Context(), current)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"update": release})
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil {
		writeError(w, http.StatusServiceUnavailable, "updater disabled")
		return
	}
	var req struct {
		Tag string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Tag) == "" {
		writeError(w, http.StatusBadRequest, "tag is required")
		return
	}
	msg, err := s.updater.Install(r.Context(), req.Tag)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
