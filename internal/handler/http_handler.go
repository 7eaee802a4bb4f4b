package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/internal/repository"
	"github.com/weiawesome/realm-live/internal/service"
	"github.com/weiawesome/realm-live/pkg/log"
	"github.com/weiawesome/realm-live/pkg/middleware"
	"github.com/weiawesome/realm-live/pkg/response"
)

// Handler handles the workspace HTTP API.
type Handler struct {
	workspace      service.WorkspaceService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(workspace service.WorkspaceService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		workspace:      workspace,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
		}

		protected := api.Group("")
		protected.Use(h.authMiddleware.RequireAuth())
		{
			protected.GET("/me", h.GetMe)

			protected.POST("/projects", h.CreateProject)
			protected.GET("/projects", h.ListProjects)
			protected.GET("/projects/:projectId", h.GetProject)
			protected.DELETE("/projects/:projectId", h.DeleteProject)
			protected.POST("/projects/:projectId/members", h.AddMember)
			protected.GET("/projects/:projectId/members", h.ListMembers)
			protected.GET("/projects/:projectId/presence", h.Presence)
			protected.POST("/projects/:projectId/tasks", h.CreateTask)
			protected.GET("/projects/:projectId/tasks", h.ListTasks)

			protected.GET("/tasks/:taskId", h.GetTask)
			protected.PUT("/tasks/:taskId", h.UpdateTask)
			protected.DELETE("/tasks/:taskId", h.DeleteTask)
			protected.POST("/tasks/:taskId/comments", h.AddComment)
			protected.GET("/tasks/:taskId/comments", h.ListComments)

			protected.GET("/notifications", h.ListNotifications)
			protected.PUT("/notifications/:id/read", h.MarkNotificationRead)
		}
	}
}

// RegisterOpsRoutes registers the health and metrics endpoints.
func RegisterOpsRoutes(r *gin.Engine, gatherer prometheus.Gatherer) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// Register handles user registration.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.workspace.Register(ctx, &req)
	if err != nil {
		h.fail(c, err, "failed to register user")
		return
	}
	response.Created(c, result)
}

// Login handles user login.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.workspace.Login(ctx, &req)
	if err != nil {
		h.fail(c, err, "failed to login")
		return
	}
	response.Success(c, result)
}

func (h *Handler) GetMe(c *gin.Context) {
	user, err := h.workspace.Me(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "failed to load user")
		return
	}
	response.Success(c, user)
}

func (h *Handler) CreateProject(c *gin.Context) {
	var req domain.CreateProjectRequest
	if !bind(c, &req) {
		return
	}
	project, err := h.workspace.CreateProject(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		h.fail(c, err, "failed to create project")
		return
	}
	response.Created(c, project)
}

func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.workspace.ListProjects(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "failed to list projects")
		return
	}
	response.List(c, projects)
}

func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.workspace.GetProject(c.Request.Context(), middleware.GetUserID(c), c.Param("projectId"))
	if err != nil {
		h.fail(c, err, "failed to load project")
		return
	}
	response.Success(c, project)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.workspace.DeleteProject(c.Request.Context(), middleware.GetUserID(c), c.Param("projectId")); err != nil {
		h.fail(c, err, "failed to delete project")
		return
	}
	response.Success(c, gin.H{"message": "project deleted"})
}

func (h *Handler) AddMember(c *gin.Context) {
	var req domain.AddMemberRequest
	if !bind(c, &req) {
		return
	}
	member, err := h.workspace.AddMember(c.Request.Context(), middleware.GetUserID(c), c.Param("projectId"), &req)
	if err != nil {
		h.fail(c, err, "failed to add member")
		return
	}
	response.Created(c, member)
}

func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.workspace.ListMembers(c.Request.Context(), middleware.GetUserID(c), c.Param("projectId"))
	if err != nil {
		h.fail(c, err, "failed to list members")
		return
	}
	response.List(c, members)
}

func (h *Handler) Presence(c *gin.Context) {
	presence, err := h.workspace.Presence(c.Request.Context(), middleware.GetUserID(c), c.Param("projectId"))
	if err != nil {
		h.fail(c, err, "failed to load presence")
		return
	}
	response.Success(c, presence)
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req domain.CreateTaskRequest
	if !bind(c, &req) {
		return
	}
	task, err := h.workspace.CreateTask(c.Request.Context(), middleware.GetUserID(c), c.Param("projectId"), &req)
	if err != nil {
		h.fail(c, err, "failed to create task")
		return
	}
	response.Created(c, task)
}

func (h *Handler) ListTasks(c *gin.Context) {
	tasks, err := h.workspace.ListTasks(c.Request.Context(), middleware.GetUserID(c), c.Param("projectId"))
	if err != nil {
		h.fail(c, err, "failed to list tasks")
		return
	}
	response.List(c, tasks)
}

func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.workspace.GetTask(c.Request.Context(), middleware.GetUserID(c), c.Param("taskId"))
	if err != nil {
		h.fail(c, err, "failed to load task")
		return
	}
	response.Success(c, task)
}

func (h *Handler) UpdateTask(c *gin.Context) {
	var req domain.UpdateTaskRequest
	if !bind(c, &req) {
		return
	}
	task, err := h.workspace.UpdateTask(c.Request.Context(), middleware.GetUserID(c), c.Param("taskId"), &req)
	if err != nil {
		h.fail(c, err, "failed to update task")
		return
	}
	response.Success(c, task)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	if err := h.workspace.DeleteTask(c.Request.Context(), middleware.GetUserID(c), c.Param("taskId")); err != nil {
		h.fail(c, err, "failed to delete task")
		return
	}
	response.Success(c, gin.H{"message": "task deleted"})
}

func (h *Handler) AddComment(c *gin.Context) {
	var req domain.CreateCommentRequest
	if !bind(c, &req) {
		return
	}
	comment, err := h.workspace.AddComment(c.Request.Context(), middleware.GetUserID(c), c.Param("taskId"), &req)
	if err != nil {
		h.fail(c, err, "failed to add comment")
		return
	}
	response.Created(c, comment)
}

func (h *Handler) ListComments(c *gin.Context) {
	comments, err := h.workspace.ListComments(c.Request.Context(), middleware.GetUserID(c), c.Param("taskId"))
	if err != nil {
		h.fail(c, err, "failed to list comments")
		return
	}
	response.List(c, comments)
}

// ListNotifications returns the caller's newest notifications; ?unread=true
// restricts the list to unread ones.
func (h *Handler) ListNotifications(c *gin.Context) {
	unreadOnly, err := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	if err != nil {
		response.BadRequest(c, "unread must be a boolean")
		return
	}
	list, err := h.workspace.ListNotifications(c.Request.Context(), middleware.GetUserID(c), unreadOnly)
	if err != nil {
		h.fail(c, err, "failed to list notifications")
		return
	}
	response.List(c, list)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	n, err := h.workspace.MarkNotificationRead(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to mark notification read")
		return
	}
	response.Success(c, n)
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Str(log.FieldPath, c.FullPath()).Msg("invalid request body")
		response.BadRequest(c, err.Error())
		return false
	}
	return true
}

// fail maps service and repository errors onto the response envelope.
func (h *Handler) fail(c *gin.Context, err error, internalMsg string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, "invalid email or password")
	case errors.Is(err, service.ErrNotMember):
		response.Forbidden(c, "not a project member")
	case errors.Is(err, service.ErrNotOwner):
		response.Forbidden(c, "only the project owner can do this")
	case errors.Is(err, service.ErrAssigneeNotMember):
		response.BadRequest(c, "assignee is not a project member")
	case errors.Is(err, repository.ErrEmailExists):
		response.Conflict(c, "email already exists")
	case errors.Is(err, repository.ErrMemberExists):
		response.Conflict(c, "user is already a member")
	case errors.Is(err, repository.ErrUserNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, repository.ErrProjectNotFound):
		response.NotFound(c, "project not found")
	case errors.Is(err, repository.ErrTaskNotFound):
		response.NotFound(c, "task not found")
	case errors.Is(err, repository.ErrNotificationNotFound):
		response.NotFound(c, "notification not found")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldPath, c.FullPath()).Msg(internalMsg)
		response.InternalError(c, internalMsg)
	}
}
