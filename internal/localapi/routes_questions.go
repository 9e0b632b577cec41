package localapi

import (
	"net/http"
	"strings"
)

func (s *Server) registerQuestionRoutes() {
	s.mux.HandleFunc("/api/v1/questions/", s.handleQuestionActions)
}

func (s *Server) handleQuestionActions(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/questions/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "response" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	questionID := parts[0]

	var body struct {
		Response string `json:"response"`
	}
	if !decodeBody(r, &body) || strings.TrimSpace(body.Response) == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "response text is required")
		return
	}

	result, err := s.deps.Planning.ResumeClarification(r.Context(), questionID, body.Response)
	if err != nil {
		respondError(w, http.StatusConflict, "RESUME_FAILED", err.Error())
		return
	}
	if result.Pending {
		// The provider asked a follow-up question.
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
