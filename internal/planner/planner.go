package planner

import (
	"context"
	"fmt"
	"log/slog"

	"planloom/internal/clarify"
	"planloom/internal/db"
	"planloom/internal/featurestate"
	"planloom/internal/protocol"
	"planloom/internal/provider"
	"planloom/internal/reconcile"
	"planloom/internal/recovery"

	"github.com/google/uuid"
)

// PlanOptions selects the planning flavor. Review plans are append/update
// only: reconciliation never deletes tasks the user is already tracking.
type PlanOptions struct {
	FromReview bool
}

// PlanResult is what a planning round produced. Pending means the provider
// asked a clarification question and the round is suspended until
// ResumeClarification runs with the answer.
type PlanResult struct {
	Pending    bool
	QuestionID string
	Question   clarify.Clarification
	Tasks      []db.Task
	Warnings   []string
}

// Planner runs the full request-to-persisted-plan pipeline for one feature at
// a time. It is not safe to run two rounds for the same feature concurrently.
type Planner struct {
	Provider   provider.CompletionProvider
	Store      *featurestate.Store
	Notifier   Notifier
	Logger     *slog.Logger
	Decomposer *Decomposer
}

func NewPlanner(p provider.CompletionProvider, store *featurestate.Store, notifier Notifier, logger *slog.Logger) *Planner {
	return &Planner{
		Provider:   p,
		Store:      store,
		Notifier:   notifier,
		Logger:     logger,
		Decomposer: &Decomposer{Provider: p, Logger: logger},
	}
}

// PlanFeature turns a free-text feature request into a persisted task plan.
func (p *Planner) PlanFeature(ctx context.Context, featureID, request string, opts PlanOptions) (PlanResult, error) {
	if err := p.Store.AppendHistory(db.HistoryEntry{
		FeatureID: featureID,
		Role:      db.HistoryRoleUser,
		Content:   request,
	}); err != nil {
		return PlanResult{}, fmt.Errorf("record request: %w", err)
	}

	prompt := buildPlanPrompt(request)
	planningType := db.PlanningTypeFeature
	if opts.FromReview {
		prompt = buildReviewPrompt(request)
		planningType = db.PlanningTypeAdjustment
	}
	return p.run(ctx, featureID, prompt, planningType)
}

// ResumeClarification consumes a suspended planning round and re-enters the
// pipeline with the human's answer folded into the prompt. Each question id
// resumes at most once; a second call reports nothing to resume.
func (p *Planner) ResumeClarification(ctx context.Context, questionID, response string) (PlanResult, error) {
	state, found, err := p.Store.ConsumePlanningState(questionID)
	if err != nil {
		return PlanResult{}, fmt.Errorf("load planning state: %w", err)
	}
	if !found {
		return PlanResult{}, fmt.Errorf("no suspended planning round for question %s", questionID)
	}

	if err := p.Store.AppendHistory(db.HistoryEntry{
		FeatureID: state.FeatureID,
		Role:      db.HistoryRoleUser,
		Content:   response,
		Action:    "clarification_response",
	}); err != nil {
		return PlanResult{}, fmt.Errorf("record clarification response: %w", err)
	}

	prompt := buildResumePrompt(state.Prompt, state.PartialResponse, response)
	return p.run(ctx, state.FeatureID, prompt, state.PlanningType)
}

func (p *Planner) run(ctx context.Context, featureID, prompt, planningType string) (PlanResult, error) {
	raw, err := p.Provider.GenerateStructured(ctx, prompt, planSchema())
	if err != nil {
		p.fail(featureID, fmt.Sprintf("planning request failed: %v", err))
		return PlanResult{}, fmt.Errorf("generate plan: %w", err)
	}

	parsed := recovery.ParsePlanResponse(raw)

	if c, ok := clarify.Detect(raw); ok {
		return p.suspend(featureID, prompt, raw, planningType, c)
	}
	if !parsed.OK {
		p.fail(featureID, fmt.Sprintf("plan response unusable after recovery (stage %s): %s",
			parsed.FailureStage, parsed.Raw))
		return PlanResult{}, fmt.Errorf("plan response unusable, failed at stage %s", parsed.FailureStage)
	}

	fromReview := planningType == db.PlanningTypeAdjustment
	tasks := p.buildTasks(ctx, featureID, parsed.Plan.Subtasks, fromReview)

	persisted, err := p.Store.ListTasksByFeature(featureID)
	if err != nil {
		return PlanResult{}, fmt.Errorf("load persisted tasks: %w", err)
	}
	ops := reconcile.Compute(tasks, persisted, fromReview)
	for _, warning := range ops.Warnings {
		p.Logger.Warn("plan reconciliation", "featureId", featureID, "warning", warning)
	}
	if err := p.Store.ApplyPlanOps(featureID, ops); err != nil {
		p.fail(featureID, fmt.Sprintf("persisting plan failed: %v", err))
		return PlanResult{}, fmt.Errorf("apply plan: %w", err)
	}

	if err := p.Store.AppendHistoryJSON(featureID, db.HistoryRoleModel, tasks); err != nil {
		p.Logger.Warn("recording plan in history failed", "featureId", featureID, "error", err)
	}
	p.Notifier.Broadcast(protocol.Message{Type: protocol.TypeTasksUpdated, FeatureID: featureID})

	final, err := p.Store.ListTasksByFeature(featureID)
	if err != nil {
		return PlanResult{}, fmt.Errorf("reload tasks: %w", err)
	}
	return PlanResult{Tasks: final, Warnings: ops.Warnings}, nil
}

// buildTasks classifies each parsed plan item and decomposes the high-effort
// ones, one at a time.
func (p *Planner) buildTasks(ctx context.Context, featureID string, items []recovery.PlanItem, fromReview bool) []db.Task {
	out := make([]db.Task, 0, len(items))
	for _, item := range items {
		effort := normalizeEffort(item.Effort)
		var desc string
		if effort == "" {
			effort, desc = ClassifyEffort(ctx, p.Provider, p.Logger, item.Description)
		} else {
			desc, _ = StripEffortTag(item.Description)
		}
		task := db.Task{
			TaskID:      uuid.NewString(),
			FeatureID:   featureID,
			Title:       desc,
			Description: desc,
			Status:      db.StatusPending,
			Effort:      effort,
			FromReview:  fromReview,
		}
		if effort == db.EffortHigh {
			out = append(out, p.Decomposer.Decompose(ctx, task)...)
			continue
		}
		out = append(out, task)
	}
	return out
}

func (p *Planner) suspend(featureID, prompt, raw, planningType string, c clarify.Clarification) (PlanResult, error) {
	questionID := uuid.NewString()
	err := p.Store.PutPlanningState(db.PlanningState{
		QuestionID:      questionID,
		FeatureID:       featureID,
		Prompt:          prompt,
		PartialResponse: raw,
		PlanningType:    planningType,
	})
	if err != nil {
		return PlanResult{}, fmt.Errorf("persist planning state: %w", err)
	}

	p.Notifier.Broadcast(protocol.Message{
		Type:      protocol.TypeShowQuestion,
		FeatureID: featureID,
		Payload: protocol.MustRaw(protocol.ShowQuestionPayload{
			QuestionID: questionID,
			Question:   c.Question,
			Options:    c.Options,
			AllowsText: c.AllowsText,
		}),
	})
	p.Logger.Info("planning suspended on clarification",
		"featureId", featureID, "questionId", questionID)
	return PlanResult{Pending: true, QuestionID: questionID, Question: c}, nil
}

// fail records a planning failure in history and pushes it to clients. The
// caller still returns the error; this is the user-visible half.
func (p *Planner) fail(featureID, message string) {
	if err := p.Store.AppendHistory(db.HistoryEntry{
		FeatureID: featureID,
		Role:      db.HistoryRoleToolResponse,
		Content:   message,
		Action:    "planning_failed",
	}); err != nil {
		p.Logger.Warn("recording planning failure failed", "featureId", featureID, "error", err)
	}
	p.Notifier.Broadcast(protocol.Message{
		Type:      protocol.TypeError,
		FeatureID: featureID,
		Payload:   protocol.MustRaw(protocol.ErrorPayload{Message: message}),
	})
}
