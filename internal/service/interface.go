package service

import (
	"context"
	"errors"

	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/internal/hub"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrNotMember           = errors.New("not a member of this project")
	ErrNotOwner            = errors.New("only the project owner can do this")
	ErrAssigneeNotMember   = errors.New("assignee is not a member of this project")
	ErrInvalidNotification = errors.New("invalid notification request")
	ErrAuthFailed          = errors.New("websocket authentication failed")
)

// EventDispatcher fans domain events and notifications out to live channels.
type EventDispatcher interface {
	DispatchEvent(ctx context.Context, event domain.DomainEvent) (DeliveryReport, error)
	DispatchNotification(ctx context.Context, req domain.NotificationRequest) (*domain.Notification, DeliveryReport, error)
}

// ChannelRegistry is the part of the hub the dispatcher reads.
type ChannelRegistry interface {
	Snapshot(identities []domain.UserIdentity) map[domain.UserIdentity][]*hub.Client
	Evict(c *hub.Client)
}

// Registrar is the part of the hub the handshake writes.
type Registrar interface {
	Register(identity domain.UserIdentity, c *hub.Client) error
	Unregister(c *hub.Client)
}

// PresenceReader reports which identities hold a live channel.
type PresenceReader interface {
	Online(identities []domain.UserIdentity) []domain.UserIdentity
}

// IdentityVerifier turns a credential token into an identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (domain.UserIdentity, error)
}

// TokenIssuer issues access tokens.
type TokenIssuer interface {
	GenerateToken(userID, email, name string) (string, int64, error)
}

// ConnectionService drives the per-channel handshake.
type ConnectionService interface {
	HandleAuth(ctx context.Context, c *hub.Client, token string) error
	HandlePing(ctx context.Context, c *hub.Client) error
	HandleDisconnect(ctx context.Context, c *hub.Client)
}

// WorkspaceService implements the HTTP API on top of the repositories and
// dispatches the resulting pushes after each write commits.
type WorkspaceService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	Me(ctx context.Context, userID string) (*domain.User, error)

	CreateProject(ctx context.Context, userID string, req *domain.CreateProjectRequest) (*domain.Project, error)
	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	GetProject(ctx context.Context, userID, projectID string) (*domain.Project, error)
	DeleteProject(ctx context.Context, userID, projectID string) error
	AddMember(ctx context.Context, userID, projectID string, req *domain.AddMemberRequest) (*domain.ProjectMember, error)
	ListMembers(ctx context.Context, userID, projectID string) ([]domain.MemberInfo, error)
	Presence(ctx context.Context, userID, projectID string) (*domain.Presence, error)

	CreateTask(ctx context.Context, userID, projectID string, req *domain.CreateTaskRequest) (*domain.Task, error)
	ListTasks(ctx context.Context, userID, projectID string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, req *domain.UpdateTaskRequest) (*domain.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) error

	AddComment(ctx context.Context, userID, taskID string, req *domain.CreateCommentRequest) (*domain.Comment, error)
	ListComments(ctx context.Context, userID, taskID string) ([]domain.Comment, error)

	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error)
}
