package db

// Task statuses persisted in the tasks table. The storage layer re-enforces
// this set with a CHECK constraint.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusDecomposed = "decomposed"
)

const (
	EffortLow    = "low"
	EffortMedium = "medium"
	EffortHigh   = "high"
)

const (
	PlanningTypeFeature    = "feature_planning"
	PlanningTypeAdjustment = "plan_adjustment"
)

const (
	HistoryRoleUser         = "user"
	HistoryRoleModel        = "model"
	HistoryRoleToolCall     = "tool_call"
	HistoryRoleToolResponse = "tool_response"
)

type Task struct {
	TaskID       string `gorm:"column:task_id;primaryKey" json:"taskId"`
	FeatureID    string `gorm:"column:feature_id;not null;index" json:"featureId"`
	ParentTaskID string `gorm:"column:parent_task_id;not null;default:''" json:"parentTaskId,omitempty"`
	Title        string `gorm:"column:title;not null;default:''" json:"title"`
	Description  string `gorm:"column:description;not null;default:''" json:"description"`
	Status       string `gorm:"column:status;not null;default:'pending'" json:"status"`
	Completed    bool   `gorm:"column:completed;not null;default:false" json:"completed"`
	Effort       string `gorm:"column:effort;not null;default:''" json:"effort,omitempty"`
	FromReview   bool   `gorm:"column:from_review;not null;default:false" json:"fromReview"`
	CreatedAt    int64  `gorm:"column:created_at;not null;default:0" json:"createdAt"`
	UpdatedAt    int64  `gorm:"column:updated_at;not null;default:0" json:"updatedAt"`
}

func (Task) TableName() string { return "tasks" }

type PlanningState struct {
	QuestionID      string `gorm:"column:question_id;primaryKey"`
	FeatureID       string `gorm:"column:feature_id;not null"`
	Prompt          string `gorm:"column:prompt;not null;default:''"`
	PartialResponse string `gorm:"column:partial_response;not null;default:''"`
	PlanningType    string `gorm:"column:planning_type;not null;default:'feature_planning'"`
	CreatedAt       int64  `gorm:"column:created_at;not null;default:0"`
}

func (PlanningState) TableName() string { return "planning_states" }

type HistoryEntry struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	FeatureID string `gorm:"column:feature_id;not null;index"`
	Timestamp int64  `gorm:"column:ts;not null;default:0"`
	Role      string `gorm:"column:role;not null"`
	Content   string `gorm:"column:content;not null;default:''"`
	TaskID    string `gorm:"column:task_id;not null;default:''"`
	Action    string `gorm:"column:action;not null;default:''"`
	Details   string `gorm:"column:details;not null;default:''"`
}

func (HistoryEntry) TableName() string { return "history_entries" }

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusDecomposed:
		return true
	}
	return false
}

func ValidEffort(e string) bool {
	switch e {
	case EffortLow, EffortMedium, EffortHigh:
		return true
	}
	return false
}
