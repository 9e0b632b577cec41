package localapi

import (
	"net/http"
	"strings"

	"planloom/internal/db"
)

var settableStatus = map[string]struct{}{
	db.StatusPending:    {},
	db.StatusInProgress: {},
	db.StatusCompleted:  {},
}

func (s *Server) registerTaskRoutes() {
	s.mux.HandleFunc("/api/v1/tasks/", s.handleTaskActions)
}

func (s *Server) handleTaskActions(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "status" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	taskID := parts[0]

	var body struct {
		Status string `json:"status"`
	}
	if !decodeBody(r, &body) {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "body is required")
		return
	}
	if _, ok := settableStatus[body.Status]; !ok {
		respondError(w, http.StatusBadRequest, "BAD_STATUS", "status must be pending, in_progress, or completed")
		return
	}

	task, found, err := s.deps.Tasks.GetTask(taskID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TASK_LOAD_FAILED", err.Error())
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "TASK_NOT_FOUND", "task not found")
		return
	}

	msg, err := s.deps.Status.MarkTaskStatus(task.FeatureID, taskID, body.Status)
	if err != nil {
		respondError(w, http.StatusConflict, "STATUS_REJECTED", err.Error())
		return
	}
	respondOK(w, map[string]any{"message": msg})
}
