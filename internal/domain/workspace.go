package domain

import "time"

// Member roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Task statuses and priorities.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Timestamps cross the API and the websocket as unix milliseconds.

// User represents a user entity.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Avatar       string `json:"avatar"`
	PasswordHash string `json:"-"`
	CreatedAt    int64  `json:"createdAt"`
}

// Project represents a project entity.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId"`
	CreatedAt   int64  `json:"createdAt"`
}

// ProjectMember is one membership row.
type ProjectMember struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	JoinedAt  int64  `json:"joinedAt"`
}

// MemberInfo is a member joined with its user.
type MemberInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
	Role     string `json:"role"`
	JoinedAt int64  `json:"joinedAt"`
}

// Task represents a task snapshot.
type Task struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"projectId"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Status       string  `json:"status"`
	Priority     string  `json:"priority"`
	AssigneeID   *string `json:"assigneeId"`
	AssigneeName *string `json:"assigneeName,omitempty"`
	CreatedBy    string  `json:"createdBy"`
	CreatedAt    int64   `json:"createdAt"`
	DueDate      *int64  `json:"dueDate"`
}

// Comment represents a comment with its author's display name.
type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

// Presence reports which members of a project hold a live channel.
type Presence struct {
	ProjectID string   `json:"projectId"`
	Online    []string `json:"online"`
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	User      *User  `json:"user"`
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description"`
}

type AddMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title" binding:"required,max=200"`
	Description string  `json:"description"`
	Priority    string  `json:"priority" binding:"omitempty,oneof=low medium high"`
	AssigneeID  *string `json:"assigneeId"`
	DueDate     *int64  `json:"dueDate"`
}

// UpdateTaskRequest is a partial update; nil fields keep their value.
type UpdateTaskRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=200"`
	Description *string `json:"description"`
	Status      *string `json:"status" binding:"omitempty,oneof=todo in_progress done"`
	Priority    *string `json:"priority" binding:"omitempty,oneof=low medium high"`
	AssigneeID  *string `json:"assigneeId"`
	DueDate     *int64  `json:"dueDate"`
}

type CreateCommentRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

// Millis converts t to unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts unix milliseconds to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
