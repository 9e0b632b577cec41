package localapi

import (
	"net/http"
	"strings"

	"planloom/internal/planner"
)

func (s *Server) registerFeatureRoutes() {
	s.mux.HandleFunc("/api/v1/features/", s.handleFeatureActions)
}

func (s *Server) handleFeatureActions(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/features/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	featureID := parts[0]

	switch parts[1] {
	case "plan":
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
			return
		}
		s.handlePlanFeature(w, r, featureID)
	case "tasks":
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
			return
		}
		s.handleListTasks(w, featureID)
	default:
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	}
}

func (s *Server) handlePlanFeature(w http.ResponseWriter, r *http.Request, featureID string) {
	var body struct {
		Request    string `json:"request"`
		FromReview bool   `json:"fromReview"`
	}
	if !decodeBody(r, &body) || strings.TrimSpace(body.Request) == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "request text is required")
		return
	}

	result, err := s.deps.Planning.PlanFeature(r.Context(), featureID, body.Request,
		planner.PlanOptions{FromReview: body.FromReview})
	if err != nil {
		respondError(w, http.StatusBadGateway, "PLANNING_FAILED", err.Error())
		return
	}
	if result.Pending {
		respondOK(w, map[string]any{
			"pending":    true,
			"questionId": result.QuestionID,
			"question":   result.Question.Question,
			"options":    result.Question.Options,
			"allowsText": result.Question.AllowsText,
		})
		return
	}
	respondOK(w, map[string]any{
		"pending":  false,
		"tasks":    result.Tasks,
		"warnings": result.Warnings,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, featureID string) {
	tasks, err := s.deps.Tasks.ListTasksByFeature(featureID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TASKS_LOAD_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"tasks": tasks})
}
