package localapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"planloom/internal/db"
	"planloom/internal/planner"
)

// PlanningService runs the request-to-plan pipeline. *planner.Planner
// implements it.
type PlanningService interface {
	PlanFeature(ctx context.Context, featureID, request string, opts planner.PlanOptions) (planner.PlanResult, error)
	ResumeClarification(ctx context.Context, questionID, response string) (planner.PlanResult, error)
}

// TaskStatusService advances task statuses. *planner.StateMachine implements
// it.
type TaskStatusService interface {
	MarkTaskStatus(featureID, taskID, status string) (string, error)
}

// TaskLister reads the persisted plan. *featurestate.Store implements it.
type TaskLister interface {
	ListTasksByFeature(featureID string) ([]db.Task, error)
	GetTask(taskID string) (db.Task, bool, error)
}

type Deps struct {
	Planning PlanningService
	Status   TaskStatusService
	Tasks    TaskLister
	Logger   *slog.Logger
}

type Server struct {
	deps Deps
	mux  *http.ServeMux
	hub  *WSHub
}

func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux(), hub: NewWSHub(deps.Logger)}
	s.hub.SetResponder(s)
	s.registerFeatureRoutes()
	s.registerQuestionRoutes()
	s.registerTaskRoutes()
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ws", s.hub.HandleWS)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub exposes the notifier for wiring into the planner.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// ResumeQuestion handles clarification answers arriving over the websocket.
// Failures are pushed back over the channel; there is no HTTP caller to
// report to.
func (s *Server) ResumeQuestion(ctx context.Context, questionID, response string) {
	if _, err := s.deps.Planning.ResumeClarification(ctx, questionID, response); err != nil {
		s.deps.Logger.Warn("clarification resume failed", "questionId", questionID, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]any{"status": "ok", "wsClients": s.hub.ClientCount()})
}

func respondOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func respondError(w http.ResponseWriter, code int, errCode string, msg string) {
	writeJSON(w, code, map[string]any{"ok": false, "error": map[string]any{"code": errCode, "message": msg}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(r *http.Request, into any) bool {
	if r.Body == nil {
		return false
	}
	return json.NewDecoder(r.Body).Decode(into) == nil
}
