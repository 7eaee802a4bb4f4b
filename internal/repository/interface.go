package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/realm-live/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailExists          = errors.New("email already exists")
	ErrProjectNotFound      = errors.New("project not found")
	ErrMemberNotFound       = errors.New("member not found")
	ErrMemberExists         = errors.New("user is already a member")
	ErrTaskNotFound         = errors.New("task not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

// UserRepository defines the interface for user data persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// MembershipRepository resolves the audience of a project. It reads the
// membership table directly on every call.
type MembershipRepository interface {
	// MembersOf returns the distinct member identities of a project. Unknown
	// and deleted projects yield an empty slice, not an error.
	MembersOf(ctx context.Context, projectID string) ([]domain.UserIdentity, error)
}

// ProjectRepository defines the interface for project and membership persistence.
type ProjectRepository interface {
	MembershipRepository

	// Create stores the project and its owner's membership together.
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Project, error)
	Delete(ctx context.Context, id string) error

	AddMember(ctx context.Context, projectID, userID, role string) (*domain.ProjectMember, error)
	GetMember(ctx context.Context, projectID, userID string) (*domain.ProjectMember, error)
	ListMembers(ctx context.Context, projectID string) ([]domain.MemberInfo, error)
}

// TaskRepository defines the interface for task and comment persistence.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id string) error

	CreateComment(ctx context.Context, comment *domain.Comment) error
	ListComments(ctx context.Context, taskID string) ([]domain.Comment, error)
}

// NotificationRepository is the append-only per-user notification log.
type NotificationRepository interface {
	// Create assigns id and creation time and stores the notification unread.
	Create(ctx context.Context, n *domain.Notification) error
	ListForUser(ctx context.Context, userID string, filter domain.NotificationFilter) ([]domain.Notification, error)
	// MarkRead flips the read flag of the caller's notification. Marking an
	// already read notification succeeds without change.
	MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error)
}
