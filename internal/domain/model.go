package domain

import (
	"time"

	"gorm.io/gorm"
)

// UserModel is the GORM model for users table.
type UserModel struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	Name         string    `gorm:"type:varchar(100);not null"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	Avatar       string    `gorm:"type:varchar(512);default:''"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		Avatar:       m.Avatar,
		PasswordHash: m.PasswordHash,
		CreatedAt:    Millis(m.CreatedAt),
	}
}

// ProjectModel is the GORM model for projects table. Deleted projects are
// soft-deleted and drop out of every audience.
type ProjectModel struct {
	ID          string         `gorm:"type:varchar(36);primaryKey"`
	Name        string         `gorm:"type:varchar(200);not null"`
	Description string         `gorm:"type:text"`
	OwnerID     string         `gorm:"type:varchar(36);index;not null"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (ProjectModel) TableName() string { return "projects" }

func (m *ProjectModel) ToDomain() *Project {
	return &Project{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		OwnerID:     m.OwnerID,
		CreatedAt:   Millis(m.CreatedAt),
	}
}

// ProjectMemberModel is the GORM model for project_members table.
type ProjectMemberModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	ProjectID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_project_user"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_project_user;index"`
	Role      string    `gorm:"type:varchar(20);not null;default:'member'"`
	JoinedAt  time.Time `gorm:"autoCreateTime"`
}

func (ProjectMemberModel) TableName() string { return "project_members" }

func (m *ProjectMemberModel) ToDomain() *ProjectMember {
	return &ProjectMember{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		Role:      m.Role,
		JoinedAt:  Millis(m.JoinedAt),
	}
}

// TaskModel is the GORM model for tasks table.
type TaskModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	ProjectID   string    `gorm:"type:varchar(36);index;not null"`
	Title       string    `gorm:"type:varchar(200);not null"`
	Description string    `gorm:"type:text"`
	Status      string    `gorm:"type:varchar(20);not null;default:'todo'"`
	Priority    string    `gorm:"type:varchar(20);not null;default:'medium'"`
	AssigneeID  *string   `gorm:"type:varchar(36)"`
	CreatedBy   string    `gorm:"type:varchar(36);not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	DueDate     *time.Time
}

func (TaskModel) TableName() string { return "tasks" }

// ToDomain converts the model; assigneeName is filled by the repository.
func (m *TaskModel) ToDomain() *Task {
	t := &Task{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Title:       m.Title,
		Description: m.Description,
		Status:      m.Status,
		Priority:    m.Priority,
		AssigneeID:  m.AssigneeID,
		CreatedBy:   m.CreatedBy,
		CreatedAt:   Millis(m.CreatedAt),
	}
	if m.DueDate != nil {
		due := Millis(*m.DueDate)
		t.DueDate = &due
	}
	return t
}

// CommentModel is the GORM model for comments table.
type CommentModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	TaskID    string    `gorm:"type:varchar(36);index;not null"`
	UserID    string    `gorm:"type:varchar(36);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (CommentModel) TableName() string { return "comments" }

// NotificationModel is the GORM model for notifications table.
type NotificationModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(36);not null;index:idx_notifications_user_created,priority:1"`
	Kind      string    `gorm:"column:type;type:varchar(32);not null"`
	Content   string    `gorm:"type:text;not null"`
	ProjectID *string   `gorm:"type:varchar(36)"`
	TaskID    *string   `gorm:"type:varchar(36)"`
	IsRead    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index:idx_notifications_user_created,priority:2"`
}

func (NotificationModel) TableName() string { return "notifications" }

func (m *NotificationModel) ToDomain() *Notification {
	return &Notification{
		ID:        m.ID,
		UserID:    UserIdentity(m.UserID),
		Kind:      NotificationKind(m.Kind),
		Content:   m.Content,
		ProjectID: m.ProjectID,
		TaskID:    m.TaskID,
		Read:      m.IsRead,
		CreatedAt: Millis(m.CreatedAt),
	}
}

// AllModels lists every model for auto-migration.
func AllModels() []interface{} {
	return []interface{}{
		&UserModel{},
		&ProjectModel{},
		&ProjectMemberModel{},
		&TaskModel{},
		&CommentModel{},
		&NotificationModel{},
	}
}
