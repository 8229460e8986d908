package task

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/workdesk/core"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"

	KindTask    = "task"
	KindMeeting = "meeting"
)

// Task is a unit of work or a meeting assigned to one user.
// JSON names match the column names so change notifications decode directly into it.
type Task struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description" db:"description"`
	IsComplete  bool       `json:"is_complete" db:"is_complete"`
	AssigneeID  string     `json:"assignee_id" db:"assignee_id"`
	CreatedBy   string     `json:"created_by" db:"created_by"`
	Priority    string     `json:"priority" db:"priority"`
	DueDate     *time.Time `json:"due_date" db:"due_date"`
	Kind        string     `json:"type" db:"type"`
	MeetingLink *string    `json:"meeting_link" db:"meeting_link"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"` // UTC
}

func (t Task) RecordID() string { return t.ID }

// NewTask contains information needed to create a Task.
type NewTask struct {
	Title       string     `json:"title" validate:"required,notblank,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	AssigneeID  string     `json:"assignee_id"` // defaults to the creator
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date"`
	Kind        string     `json:"type" validate:"omitempty,oneof=task meeting"`
	MeetingLink string     `json:"meeting_link" validate:"omitempty,url"`
}

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	nt.AssigneeID = core.CleanString(nt.AssigneeID)
	nt.Priority = core.CleanString(nt.Priority, true /* lower */)
	nt.Kind = core.CleanString(nt.Kind, true /* lower */)
	nt.MeetingLink = core.CleanString(nt.MeetingLink)
	if nt.Priority == "" {
		nt.Priority = PriorityMedium
	}
	if nt.Kind == "" {
		nt.Kind = KindTask
	}
	return validate.Struct(nt)
}

// UpdateTask defines what may be changed on an existing Task.
type UpdateTask struct {
	IsComplete *bool `json:"is_complete" validate:"required"`
}

func (ut *UpdateTask) Validate(validate *validator.Validate) error {
	return validate.Struct(ut)
}
