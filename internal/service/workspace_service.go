package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/realm-live/internal/audit"
	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/internal/repository"
	"github.com/weiawesome/realm-live/pkg/log"
)

// workspaceServiceImpl implements WorkspaceService interface.
type workspaceServiceImpl struct {
	users         repository.UserRepository
	projects      repository.ProjectRepository
	tasks         repository.TaskRepository
	notifications repository.NotificationRepository
	dispatcher    EventDispatcher
	presence      PresenceReader
	tokens        TokenIssuer
	hashCost      int
}

// NewWorkspaceService creates a new workspace service.
func NewWorkspaceService(
	users repository.UserRepository,
	projects repository.ProjectRepository,
	tasks repository.TaskRepository,
	notifications repository.NotificationRepository,
	dispatcher EventDispatcher,
	presence PresenceReader,
	tokens TokenIssuer,
) WorkspaceService {
	return &workspaceServiceImpl{
		users:         users,
		projects:      projects,
		tasks:         tasks,
		notifications: notifications,
		dispatcher:    dispatcher,
		presence:      presence,
		tokens:        tokens,
		hashCost:      bcrypt.DefaultCost,
	}
}

// Register registers a new user.
func (s *workspaceServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hashedPassword),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrEmailExists) {
			l.Error().Err(err).Msg("failed to create user")
		}
		return nil, err
	}

	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")
	return s.issue(ctx, user)
}

// Login authenticates a user.
func (s *workspaceServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.Denied(ctx, audit.ActionLoginFailed, "", email, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by email")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.Denied(ctx, audit.ActionLoginFailed, user.ID, email, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")
	return s.issue(ctx, user)
}

func (s *workspaceServiceImpl) issue(ctx context.Context, user *domain.User) (*domain.AuthResponse, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, user.Email, user.Name)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate token")
		return nil, err
	}
	return &domain.AuthResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Me returns the caller's profile.
func (s *workspaceServiceImpl) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// CreateProject creates a project owned by the caller and notifies them.
func (s *workspaceServiceImpl) CreateProject(ctx context.Context, userID string, req *domain.CreateProjectRequest) (*domain.Project, error) {
	project := &domain.Project{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		OwnerID:     userID,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to create project")
		return nil, err
	}
	audit.LogTarget(ctx, audit.ActionCreateProject, userID, project.ID, "project created")

	s.notify(ctx, domain.NotificationRequest{
		Recipient: domain.UserIdentity(userID),
		Kind:      domain.NotificationProjectCreated,
		Content:   fmt.Sprintf("You created project %q", project.Name),
		ProjectID: project.ID,
	})
	return project, nil
}

// ListProjects lists the caller's projects.
func (s *workspaceServiceImpl) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	return s.projects.ListForUser(ctx, userID)
}

// GetProject returns a project the caller is a member of.
func (s *workspaceServiceImpl) GetProject(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return project, nil
}

// DeleteProject soft-deletes a project. Owner only.
func (s *workspaceServiceImpl) DeleteProject(ctx context.Context, userID, projectID string) error {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if project.OwnerID != userID {
		return ErrNotOwner
	}
	if err := s.projects.Delete(ctx, projectID); err != nil {
		return err
	}
	audit.LogTarget(ctx, audit.ActionDeleteProject, userID, projectID, "project deleted")
	return nil
}

// AddMember adds a user to the project and notifies them. Owner only.
func (s *workspaceServiceImpl) AddMember(ctx context.Context, userID, projectID string, req *domain.AddMemberRequest) (*domain.ProjectMember, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != userID {
		return nil, ErrNotOwner
	}

	member, err := s.projects.AddMember(ctx, projectID, req.UserID, domain.RoleMember)
	if err != nil {
		return nil, err
	}
	audit.LogTarget(ctx, audit.ActionAddMember, userID, req.UserID, "member added")

	s.notify(ctx, domain.NotificationRequest{
		Recipient: domain.UserIdentity(req.UserID),
		Kind:      domain.NotificationAddedToProject,
		Content:   fmt.Sprintf("Added to project %q", project.Name),
		ProjectID: projectID,
	})
	return member, nil
}

// ListMembers lists a project's members.
func (s *workspaceServiceImpl) ListMembers(ctx context.Context, userID, projectID string) ([]domain.MemberInfo, error) {
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.projects.ListMembers(ctx, projectID)
}

// Presence reports which members currently hold a live channel.
func (s *workspaceServiceImpl) Presence(ctx context.Context, userID, projectID string) (*domain.Presence, error) {
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	members, err := s.projects.MembersOf(ctx, projectID)
	if err != nil {
		return nil, err
	}

	online := s.presence.Online(members)
	ids := make([]string, len(online))
	for i, id := range online {
		ids[i] = id.String()
	}
	return &domain.Presence{ProjectID: projectID, Online: ids}, nil
}

// CreateTask creates a task, notifies every member and broadcasts it.
func (s *workspaceServiceImpl) CreateTask(ctx context.Context, userID, projectID string, req *domain.CreateTaskRequest) (*domain.Task, error) {
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, projectID, req.AssigneeID); err != nil {
		return nil, err
	}

	task := &domain.Task{
		ProjectID:   projectID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Priority:    req.Priority,
		AssigneeID:  blankToNil(req.AssigneeID),
		CreatedBy:   userID,
		DueDate:     req.DueDate,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldProjectID, projectID).Msg("failed to create task")
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	created := s.reload(ctx, task)

	members, err := s.projects.MembersOf(ctx, projectID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldProjectID, projectID).Msg("failed to resolve members for task notifications")
	}
	for _, member := range members {
		s.notify(ctx, domain.NotificationRequest{
			Recipient: member,
			Kind:      domain.NotificationTaskCreated,
			Content:   fmt.Sprintf("New task: %q", created.Title),
			ProjectID: projectID,
			TaskID:    created.ID,
		})
	}

	s.broadcast(ctx, domain.TaskCreated{ProjectID: projectID, Task: *created})
	return created, nil
}

// ListTasks lists a project's tasks.
func (s *workspaceServiceImpl) ListTasks(ctx context.Context, userID, projectID string) ([]domain.Task, error) {
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.tasks.ListByProject(ctx, projectID)
}

// GetTask returns a task of a project the caller is a member of.
func (s *workspaceServiceImpl) GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, task.ProjectID, userID); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask applies a partial update and broadcasts the new snapshot.
func (s *workspaceServiceImpl) UpdateTask(ctx context.Context, userID, taskID string, req *domain.UpdateTaskRequest) (*domain.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		task.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.AssigneeID != nil {
		if err := s.checkAssignee(ctx, task.ProjectID, req.AssigneeID); err != nil {
			return nil, err
		}
		task.AssigneeID = blankToNil(req.AssigneeID)
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	updated := s.reload(ctx, task)

	s.broadcast(ctx, domain.TaskUpdated{ProjectID: updated.ProjectID, Task: *updated})
	return updated, nil
}

// DeleteTask deletes a task and broadcasts its id.
func (s *workspaceServiceImpl) DeleteTask(ctx context.Context, userID, taskID string) error {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return err
	}
	audit.LogTarget(ctx, audit.ActionDeleteTask, userID, taskID, "task deleted")

	s.broadcast(ctx, domain.TaskDeleted{ProjectID: task.ProjectID, TaskID: taskID})
	return nil
}

// AddComment comments on a task and broadcasts the comment.
func (s *workspaceServiceImpl) AddComment(ctx context.Context, userID, taskID string, req *domain.CreateCommentRequest) (*domain.Comment, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	comment := &domain.Comment{TaskID: taskID, UserID: userID, Content: req.Content}
	if err := s.tasks.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	s.broadcast(ctx, domain.CommentAdded{ProjectID: task.ProjectID, TaskID: taskID, Comment: *comment})
	return comment, nil
}

// ListComments lists a task's comments.
func (s *workspaceServiceImpl) ListComments(ctx context.Context, userID, taskID string) ([]domain.Comment, error) {
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return s.tasks.ListComments(ctx, taskID)
}

// ListNotifications lists the caller's newest notifications.
func (s *workspaceServiceImpl) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	return s.notifications.ListForUser(ctx, userID, domain.NotificationFilter{
		UnreadOnly: unreadOnly,
		Limit:      domain.DefaultNotificationLimit,
	})
}

// MarkNotificationRead marks one of the caller's notifications read.
func (s *workspaceServiceImpl) MarkNotificationRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error) {
	n, err := s.notifications.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return nil, err
	}
	audit.LogTarget(ctx, audit.ActionNotificationRead, userID, notificationID, "notification read")
	return n, nil
}

func (s *workspaceServiceImpl) requireMember(ctx context.Context, projectID, userID string) error {
	_, err := s.projects.GetMember(ctx, projectID, userID)
	if errors.Is(err, repository.ErrMemberNotFound) {
		return ErrNotMember
	}
	return err
}

func (s *workspaceServiceImpl) checkAssignee(ctx context.Context, projectID string, assigneeID *string) error {
	if assigneeID == nil || *assigneeID == "" {
		return nil
	}
	if err := s.requireMember(ctx, projectID, *assigneeID); err != nil {
		if errors.Is(err, ErrNotMember) {
			return ErrAssigneeNotMember
		}
		return err
	}
	return nil
}

// reload re-reads a task so the pushed snapshot carries the assignee name.
func (s *workspaceServiceImpl) reload(ctx context.Context, task *domain.Task) *domain.Task {
	fresh, err := s.tasks.GetByID(ctx, task.ID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldTaskID, task.ID).Msg("failed to reload task")
		return task
	}
	return fresh
}

// The write has already committed when these run, so they outlive a
// cancelled request. Dispatch failures are logged and never fail it.

func (s *workspaceServiceImpl) notify(ctx context.Context, req domain.NotificationRequest) {
	ctx = context.WithoutCancel(ctx)
	if _, _, err := s.dispatcher.DispatchNotification(ctx, req); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).
			Str(log.FieldUserID, req.Recipient.String()).
			Str(log.FieldNotifyKind, string(req.Kind)).
			Msg("failed to dispatch notification")
	}
}

func (s *workspaceServiceImpl) broadcast(ctx context.Context, event domain.DomainEvent) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.dispatcher.DispatchEvent(ctx, event); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).
			Str(log.FieldEventType, string(event.Type())).
			Str(log.FieldProjectID, event.Project()).
			Msg("failed to dispatch event")
	}
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
