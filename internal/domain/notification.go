package domain

// NotificationKind tags what a notification is about.
type NotificationKind string

const (
	NotificationProjectCreated NotificationKind = "project_created"
	NotificationAddedToProject NotificationKind = "added_to_project"
	NotificationTaskCreated    NotificationKind = "task_created"
)

// Notification is a durable per-user notice. Only Read ever changes, and only
// from false to true.
type Notification struct {
	ID        string           `json:"id"`
	UserID    UserIdentity     `json:"userId"`
	Kind      NotificationKind `json:"type"`
	Content   string           `json:"content"`
	ProjectID *string          `json:"projectId"`
	TaskID    *string          `json:"taskId"`
	Read      bool             `json:"read"`
	CreatedAt int64            `json:"createdAt"`
}

// NotificationRequest describes a notification to persist and push.
type NotificationRequest struct {
	Recipient UserIdentity     `validate:"required"`
	Kind      NotificationKind `validate:"required,oneof=project_created added_to_project task_created"`
	Content   string           `validate:"required,max=1000"`
	ProjectID string
	TaskID    string
}

// NotificationFilter narrows a notification listing.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
}

// DefaultNotificationLimit is how many notifications a listing returns.
const DefaultNotificationLimit = 20
