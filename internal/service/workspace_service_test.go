package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/internal/repository"
	"github.com/weiawesome/realm-live/pkg/jwt"
)

type workspaceFixture struct {
	*fixture
	svc    *workspaceServiceImpl
	tokens *jwt.Manager
}

func newWorkspaceFixture(t *testing.T, dispatcher EventDispatcher) *workspaceFixture {
	t.Helper()
	f := newFixture(t)
	tokens, err := jwt.NewManager("test-secret", time.Hour, "realm-live")
	require.NoError(t, err)
	if dispatcher == nil {
		dispatcher = f.dispatcher
	}

	svc := NewWorkspaceService(
		repository.NewGormUserRepository(f.db),
		f.projects,
		repository.NewGormTaskRepository(f.db),
		f.notifications,
		dispatcher,
		f.hub,
		tokens,
	).(*workspaceServiceImpl)
	svc.hashCost = bcrypt.MinCost

	return &workspaceFixture{fixture: f, svc: svc, tokens: tokens}
}

func (w *workspaceFixture) register(t *testing.T, name string) *domain.User {
	t.Helper()
	resp, err := w.svc.Register(context.Background(), &domain.RegisterRequest{
		Name: name, Email: name + "@example.com", Password: "password",
	})
	require.NoError(t, err)
	return resp.User
}

func TestWorkspace_RegisterAndLogin(t *testing.T) {
	w := newWorkspaceFixture(t, nil)
	ctx := context.Background()

	resp, err := w.svc.Register(ctx, &domain.RegisterRequest{Name: "Alice", Email: "Alice@Example.com", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	claims, err := w.tokens.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	_, err = w.svc.Register(ctx, &domain.RegisterRequest{Name: "Dup", Email: "alice@example.com", Password: "password"})
	assert.ErrorIs(t, err, repository.ErrEmailExists)

	login, err := w.svc.Login(ctx, &domain.LoginRequest{Email: "alice@example.com", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)

	_, err = w.svc.Login(ctx, &domain.LoginRequest{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = w.svc.Login(ctx, &domain.LoginRequest{Email: "nobody@example.com", Password: "password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestWorkspace_AddedOfflineThenConnects(t *testing.T) {
	w := newWorkspaceFixture(t, nil)
	ctx := context.Background()
	owner := w.register(t, "bob")
	alice := w.register(t, "alice")

	project, err := w.svc.CreateProject(ctx, owner.ID, &domain.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)

	_, err = w.svc.AddMember(ctx, owner.ID, project.ID, &domain.AddMemberRequest{UserID: alice.ID})
	require.NoError(t, err)

	c := w.connect(t, alice.ID, 8)
	assert.Empty(t, drain(c))

	list, err := w.svc.ListNotifications(ctx, alice.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.NotificationAddedToProject, list[0].Kind)
	assert.Equal(t, `Added to project "Launch"`, list[0].Content)
	assert.False(t, list[0].Read)
	require.NotNil(t, list[0].ProjectID)
	assert.Equal(t, project.ID, *list[0].ProjectID)

	read, err := w.svc.MarkNotificationRead(ctx, alice.ID, list[0].ID)
	require.NoError(t, err)
	assert.True(t, read.Read)

	unread, err := w.svc.ListNotifications(ctx, alice.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestWorkspace_CreateProjectNotifiesOwner(t *testing.T) {
	w := newWorkspaceFixture(t, nil)
	owner := w.register(t, "bob")
	c := w.connect(t, owner.ID, 8)

	_, err := w.svc.CreateProject(context.Background(), owner.ID, &domain.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)

	frames := drain(c)
	require.Len(t, frames, 1)
	assert.Equal(t, "notification", frameType(t, frames[0]))
}

func TestWorkspace_CreateTaskNotifiesAndBroadcasts(t *testing.T) {
	w := newWorkspaceFixture(t, nil)
	ctx := context.Background()
	owner := w.register(t, "bob")
	alice := w.register(t, "alice")
	outsider := w.register(t, "eve")

	project, err := w.svc.CreateProject(ctx, owner.ID, &domain.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)
	_, err = w.svc.AddMember(ctx, owner.ID, project.ID, &domain.AddMemberRequest{UserID: alice.ID})
	require.NoError(t, err)

	aliceC := w.connect(t, alice.ID, 16)
	eveC := w.connect(t, outsider.ID, 16)

	task, err := w.svc.CreateTask(ctx, owner.ID, project.ID, &domain.CreateTaskRequest{
		Title: "Write docs", AssigneeID: &alice.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, task.AssigneeName)
	assert.Equal(t, "alice", *task.AssigneeName)

	frames := drain(aliceC)
	require.Len(t, frames, 2)
	assert.Equal(t, "notification", frameType(t, frames[0]))
	assert.Equal(t, "task_created", frameType(t, frames[1]))
	assert.Empty(t, drain(eveC))

	for _, u := range []*domain.User{owner, alice} {
		list, err := w.svc.ListNotifications(ctx, u.ID, true)
		require.NoError(t, err)
		var found bool
		for _, n := range list {
			if n.Kind == domain.NotificationTaskCreated {
				found = true
				require.NotNil(t, n.TaskID)
				assert.Equal(t, task.ID, *n.TaskID)
			}
		}
		assert.True(t, found, "missing task_created notification for %s", u.Name)
	}
}

func TestWorkspace_TaskLifecycleBroadcasts(t *testing.T) {
	w := newWorkspaceFixture(t, nil)
	ctx := context.Background()
	owner := w.register(t, "bob")
	project, err := w.svc.CreateProject(ctx, owner.ID, &domain.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)
	task, err := w.svc.CreateTask(ctx, owner.ID, project.ID, &domain.CreateTaskRequest{Title: "Ship"})
	require.NoError(t, err)

	c := w.connect(t, owner.ID, 16)

	status := domain.StatusInProgress
	updated, err := w.svc.UpdateTask(ctx, owner.ID, task.ID, &domain.UpdateTaskRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)
	assert.Equal(t, "Ship", updated.Title)

	comment, err := w.svc.AddComment(ctx, owner.ID, task.ID, &domain.CreateCommentRequest{Content: "started"})
	require.NoError(t, err)
	assert.Equal(t, "bob", comment.Name)

	require.NoError(t, w.svc.DeleteTask(ctx, owner.ID, task.ID))

	frames := drain(c)
	require.Len(t, frames, 3)
	assert.Equal(t, "task_updated", frameType(t, frames[0]))
	assert.Equal(t, "comment_added", frameType(t, frames[1]))
	assert.Equal(t, "task_deleted", frameType(t, frames[2]))
}

func TestWorkspace_MembershipRules(t *testing.T) {
	w := newWorkspaceFixture(t, nil)
	ctx := context.Background()
	owner := w.register(t, "bob")
	alice := w.register(t, "alice")
	eve := w.register(t, "eve")

	project, err := w.svc.CreateProject(ctx, owner.ID, &domain.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)
	_, err = w.svc.AddMember(ctx, owner.ID, project.ID, &domain.AddMemberRequest{UserID: alice.ID})
	require.NoError(t, err)

	_, err = w.svc.AddMember(ctx, alice.ID, project.ID, &domain.AddMemberRequest{UserID: eve.ID})
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = w.svc.GetProject(ctx, eve.ID, project.ID)
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = w.svc.CreateTask(ctx, eve.ID, project.ID, &domain.CreateTaskRequest{Title: "x"})
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = w.svc.CreateTask(ctx, owner.ID, project.ID, &domain.CreateTaskRequest{Title: "x", AssigneeID: &eve.ID})
	assert.ErrorIs(t, err, ErrAssigneeNotMember)

	assert.ErrorIs(t, w.svc.DeleteProject(ctx, alice.ID, project.ID), ErrNotOwner)
	require.NoError(t, w.svc.DeleteProject(ctx, owner.ID, project.ID))
	_, err = w.svc.GetProject(ctx, owner.ID, project.ID)
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)
}

func TestWorkspace_Presence(t *testing.T) {
	w := newWorkspaceFixture(t, nil)
	ctx := context.Background()
	owner := w.register(t, "bob")
	alice := w.register(t, "alice")
	project, err := w.svc.CreateProject(ctx, owner.ID, &domain.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)
	_, err = w.svc.AddMember(ctx, owner.ID, project.ID, &domain.AddMemberRequest{UserID: alice.ID})
	require.NoError(t, err)

	w.connect(t, alice.ID, 8)

	presence, err := w.svc.Presence(ctx, owner.ID, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, presence.Online)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) DispatchEvent(ctx context.Context, event domain.DomainEvent) (DeliveryReport, error) {
	args := m.Called(event)
	return args.Get(0).(DeliveryReport), args.Error(1)
}

func (m *mockDispatcher) DispatchNotification(ctx context.Context, req domain.NotificationRequest) (*domain.Notification, DeliveryReport, error) {
	args := m.Called(req)
	n, _ := args.Get(0).(*domain.Notification)
	return n, args.Get(1).(DeliveryReport), args.Error(2)
}

func TestWorkspace_DispatchFailureDoesNotFailMutation(t *testing.T) {
	d := &mockDispatcher{}
	d.On("DispatchNotification", mock.Anything).Return(nil, DeliveryReport{}, errors.New("store down"))
	d.On("DispatchEvent", mock.Anything).Return(DeliveryReport{}, errors.New("db down"))
	w := newWorkspaceFixture(t, d)
	ctx := context.Background()
	owner := w.register(t, "bob")

	project, err := w.svc.CreateProject(ctx, owner.ID, &domain.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)

	task, err := w.svc.CreateTask(ctx, owner.ID, project.ID, &domain.CreateTaskRequest{Title: "Ship"})
	require.NoError(t, err)

	got, err := w.svc.GetTask(ctx, owner.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ship", got.Title)

	d.AssertCalled(t, "DispatchEvent", mock.MatchedBy(func(e domain.DomainEvent) bool {
		return e.Type() == domain.MsgTypeTaskCreated && e.Project() == project.ID
	}))
}

// cancelAfterAddMember cancels the request once the membership row commits.
type cancelAfterAddMember struct {
	*repository.GormProjectRepository
	cancel context.CancelFunc
}

func (r *cancelAfterAddMember) AddMember(ctx context.Context, projectID, userID, role string) (*domain.ProjectMember, error) {
	m, err := r.GormProjectRepository.AddMember(ctx, projectID, userID, role)
	r.cancel()
	return m, err
}

// cancelAfterCreate cancels the request once the task row commits.
type cancelAfterCreate struct {
	repository.TaskRepository
	cancel context.CancelFunc
}

func (r *cancelAfterCreate) Create(ctx context.Context, task *domain.Task) error {
	err := r.TaskRepository.Create(ctx, task)
	r.cancel()
	return err
}

func TestWorkspace_NotificationsSurviveCancelledRequest(t *testing.T) {
	w := newWorkspaceFixture(t, nil)
	owner := w.register(t, "bob")
	alice := w.register(t, "alice")
	project, err := w.svc.CreateProject(context.Background(), owner.ID, &domain.CreateProjectRequest{Name: "Launch"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := *w.svc
	svc.projects = &cancelAfterAddMember{GormProjectRepository: w.projects, cancel: cancel}

	_, err = svc.AddMember(ctx, owner.ID, project.ID, &domain.AddMemberRequest{UserID: alice.ID})
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	list, err := w.svc.ListNotifications(context.Background(), alice.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.NotificationAddedToProject, list[0].Kind)

	aliceC := w.connect(t, alice.ID, 8)
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	svc = *w.svc
	svc.tasks = &cancelAfterCreate{TaskRepository: w.svc.tasks, cancel: cancel}

	task, err := svc.CreateTask(ctx, owner.ID, project.ID, &domain.CreateTaskRequest{Title: "Ship"})
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	for _, u := range []*domain.User{owner, alice} {
		list, err := w.svc.ListNotifications(context.Background(), u.ID, true)
		require.NoError(t, err)
		var found bool
		for _, n := range list {
			if n.Kind == domain.NotificationTaskCreated && n.TaskID != nil && *n.TaskID == task.ID {
				found = true
			}
		}
		assert.True(t, found, "missing task_created notification for %s", u.Name)
	}

	frames := drain(aliceC)
	require.Len(t, frames, 2)
	assert.Equal(t, "notification", frameType(t, frames[0]))
	assert.Equal(t, "task_created", frameType(t, frames[1]))
}
