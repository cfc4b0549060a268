package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/taskpilot/notifier/internal/domain/notification"
	"github.com/taskpilot/notifier/internal/domain/task"
	"github.com/taskpilot/notifier/internal/hub"
	"github.com/taskpilot/notifier/internal/repository/postgres"
	"github.com/taskpilot/notifier/internal/services/hooks"
)

// Server is the HTTP surface of the engine: the live stream and its backfill
// endpoint for clients, and the lifecycle hook endpoints the external task
// CRUD service calls synchronously on its write path.
//
// Authentication is terminated at the edge gateway, which forwards the
// caller's identity in X-User-ID.
type Server struct {
	Log    *zap.Logger
	Hub    *hub.Hub
	Notifs notification.Repo
	Hooks  *hooks.Service
	Clock  notification.Clock
	Health func(ctx context.Context) error
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/notifications/stream", s.handleStream)
	mux.HandleFunc("GET /v1/notifications/today", s.handleToday)
	mux.HandleFunc("POST /v1/hooks/task-created", s.handleTaskCreated)
	mux.HandleFunc("POST /v1/hooks/task-updated", s.handleTaskUpdated)
	mux.HandleFunc("POST /v1/hooks/task-status", s.handleTaskStatus)
	mux.HandleFunc("POST /v1/hooks/task-deleted", s.handleTaskDeleted)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || uid <= 0 {
		http.Error(w, "auth required", http.StatusUnauthorized)
		return 0, false
	}
	return uid, true
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	list, err := s.Notifs.ListTodayByUser(r.Context(), uid, s.Clock.Now())
	if err != nil {
		s.Log.Warn("list today", zap.Int64("user_id", uid), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*notification.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

type taskHookRequest struct {
	Task     task.Task              `json:"task"`
	Channels []notification.Channel `json:"channels"`
	EmailTo  string                 `json:"email_to"`
}

func (s *Server) handleTaskCreated(w http.ResponseWriter, r *http.Request) {
	var req taskHookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.Hooks.TaskCreated(r.Context(), &req.Task, req.Channels, req.EmailTo)
	s.finishHook(w, "task-created", req.Task.ID, err)
}

func (s *Server) handleTaskUpdated(w http.ResponseWriter, r *http.Request) {
	var req taskHookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.Hooks.TaskUpdated(r.Context(), &req.Task, req.Channels, req.EmailTo)
	s.finishHook(w, "task-updated", req.Task.ID, err)
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID int64       `json:"task_id"`
		Status task.Status `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.Hooks.TaskStatusChanged(r.Context(), req.TaskID, req.Status)
	s.finishHook(w, "task-status", req.TaskID, err)
}

func (s *Server) handleTaskDeleted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID int64 `json:"task_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.Hooks.TaskDeleted(r.Context(), req.TaskID)
	s.finishHook(w, "task-deleted", req.TaskID, err)
}

func (s *Server) finishHook(w http.ResponseWriter, name string, taskID int64, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, hooks.ErrInvalidDeadline),
		errors.Is(err, hooks.ErrInvalidChannel),
		errors.Is(err, hooks.ErrInvalidStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, postgres.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		s.Log.Warn("hook failed", zap.String("hook", name), zap.Int64("task_id", taskID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if s.Health != nil {
		if err := s.Health(ctx); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
