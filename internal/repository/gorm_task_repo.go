package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/realm-live/internal/domain"
)

// GormTaskRepository implements TaskRepository using GORM.
type GormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository creates a new GORM-based task repository.
func NewGormTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

type taskRow struct {
	domain.TaskModel
	AssigneeName *string
}

func (row *taskRow) toDomain() domain.Task {
	t := row.TaskModel.ToDomain()
	t.AssigneeName = row.AssigneeName
	return *t
}

func (r *GormTaskRepository) withAssignee(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&domain.TaskModel{}).
		Select("tasks.*, users.name AS assignee_name").
		Joins("LEFT JOIN users ON users.id = tasks.assignee_id")
}

// Create creates a new task.
func (r *GormTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	model := &domain.TaskModel{
		ID:          uuid.New().String(),
		ProjectID:   task.ProjectID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Priority:    task.Priority,
		AssigneeID:  task.AssigneeID,
		CreatedBy:   task.CreatedBy,
		DueDate:     dueDate(task.DueDate),
	}
	if model.Status == "" {
		model.Status = domain.StatusTodo
	}
	if model.Priority == "" {
		model.Priority = domain.PriorityMedium
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	*task = *model.ToDomain()
	return nil
}

// GetByID retrieves a task by ID with its assignee name.
func (r *GormTaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var rows []taskRow
	if err := r.withAssignee(ctx).Where("tasks.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrTaskNotFound
	}
	t := rows[0].toDomain()
	return &t, nil
}

// ListByProject lists a project's tasks, newest first.
func (r *GormTaskRepository) ListByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	var rows []taskRow
	err := r.withAssignee(ctx).
		Where("tasks.project_id = ?", projectID).
		Order("tasks.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	tasks := make([]domain.Task, len(rows))
	for i := range rows {
		tasks[i] = rows[i].toDomain()
	}
	return tasks, nil
}

// Update writes every mutable field of the task.
func (r *GormTaskRepository) Update(ctx context.Context, task *domain.Task) error {
	result := r.db.WithContext(ctx).Model(&domain.TaskModel{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"title":       task.Title,
			"description": task.Description,
			"status":      task.Status,
			"priority":    task.Priority,
			"assignee_id": task.AssigneeID,
			"due_date":    dueDate(task.DueDate),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Delete removes a task and its comments.
func (r *GormTaskRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.CommentModel{}, "task_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.TaskModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		return nil
	})
}

type commentRow struct {
	domain.CommentModel
	Name string
}

func (row *commentRow) toDomain() domain.Comment {
	return domain.Comment{
		ID:        row.ID,
		TaskID:    row.TaskID,
		UserID:    row.UserID,
		Content:   row.Content,
		Name:      row.Name,
		CreatedAt: domain.Millis(row.CreatedAt),
	}
}

// CreateComment stores a comment and fills in its id, time and author name.
func (r *GormTaskRepository) CreateComment(ctx context.Context, comment *domain.Comment) error {
	model := &domain.CommentModel{
		ID:      uuid.New().String(),
		TaskID:  comment.TaskID,
		UserID:  comment.UserID,
		Content: comment.Content,
	}

	var names []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.TaskModel{}).Where("id = ?", comment.TaskID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrTaskNotFound
		}
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Model(&domain.UserModel{}).Where("id = ?", comment.UserID).Pluck("name", &names).Error
	})
	if err != nil {
		return err
	}

	comment.ID = model.ID
	comment.CreatedAt = domain.Millis(model.CreatedAt)
	if len(names) > 0 {
		comment.Name = names[0]
	}
	return nil
}

// ListComments lists a task's comments, oldest first.
func (r *GormTaskRepository) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	var rows []commentRow
	err := r.db.WithContext(ctx).
		Model(&domain.CommentModel{}).
		Select("comments.*, users.name AS name").
		Joins("JOIN users ON users.id = comments.user_id").
		Where("comments.task_id = ?", taskID).
		Order("comments.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	comments := make([]domain.Comment, len(rows))
	for i := range rows {
		comments[i] = rows[i].toDomain()
	}
	return comments, nil
}

func dueDate(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := domain.FromMillis(*ms)
	return &t
}
