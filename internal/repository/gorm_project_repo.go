package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/realm-live/internal/domain"
)

// GormProjectRepository implements ProjectRepository using GORM.
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository creates a new GORM-based project repository.
func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	return &GormProjectRepository{db: db}
}

// Create creates a project and makes its owner the first member.
func (r *GormProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	model := &domain.ProjectModel{
		ID:          uuid.New().String(),
		Name:        project.Name,
		Description: project.Description,
		OwnerID:     project.OwnerID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(&domain.ProjectMemberModel{
			ID:        uuid.New().String(),
			ProjectID: model.ID,
			UserID:    project.OwnerID,
			Role:      domain.RoleOwner,
		}).Error
	})
	if err != nil {
		return err
	}

	project.ID = model.ID
	project.CreatedAt = domain.Millis(model.CreatedAt)
	return nil
}

// GetByID retrieves a live project by ID.
func (r *GormProjectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	var model domain.ProjectModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListForUser lists the projects a user is a member of, newest first.
func (r *GormProjectRepository) ListForUser(ctx context.Context, userID string) ([]domain.Project, error) {
	var models []domain.ProjectModel
	err := r.db.WithContext(ctx).
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", userID).
		Order("projects.created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	projects := make([]domain.Project, len(models))
	for i := range models {
		projects[i] = *models[i].ToDomain()
	}
	return projects, nil
}

// Delete soft-deletes a project. Its members stop receiving its events.
func (r *GormProjectRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.ProjectModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// MembersOf returns the distinct members of a live project.
func (r *GormProjectRepository) MembersOf(ctx context.Context, projectID string) ([]domain.UserIdentity, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&domain.ProjectMemberModel{}).
		Joins("JOIN projects ON projects.id = project_members.project_id AND projects.deleted_at IS NULL").
		Where("project_members.project_id = ?", projectID).
		Distinct().
		Pluck("project_members.user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return domain.Identities(ids...), nil
}

// AddMember adds a user to a project.
func (r *GormProjectRepository) AddMember(ctx context.Context, projectID, userID, role string) (*domain.ProjectMember, error) {
	model := &domain.ProjectMemberModel{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.ProjectModel{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrProjectNotFound
		}
		if err := tx.Model(&domain.UserModel{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrUserNotFound
		}
		return tx.Create(model).Error
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrMemberExists
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetMember retrieves one membership row.
func (r *GormProjectRepository) GetMember(ctx context.Context, projectID, userID string) (*domain.ProjectMember, error) {
	var model domain.ProjectMemberModel
	result := r.db.WithContext(ctx).First(&model, "project_id = ? AND user_id = ?", projectID, userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

type memberRow struct {
	ID       string
	Name     string
	Email    string
	Avatar   string
	Role     string
	JoinedAt time.Time
}

// ListMembers lists the members of a project with their user details.
func (r *GormProjectRepository) ListMembers(ctx context.Context, projectID string) ([]domain.MemberInfo, error) {
	var rows []memberRow
	err := r.db.WithContext(ctx).
		Model(&domain.ProjectMemberModel{}).
		Select("users.id, users.name, users.email, users.avatar, project_members.role, project_members.joined_at").
		Joins("JOIN users ON users.id = project_members.user_id").
		Where("project_members.project_id = ?", projectID).
		Order("project_members.joined_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	members := make([]domain.MemberInfo, len(rows))
	for i, row := range rows {
		members[i] = domain.MemberInfo{
			ID:       row.ID,
			Name:     row.Name,
			Email:    row.Email,
			Avatar:   row.Avatar,
			Role:     row.Role,
			JoinedAt: domain.Millis(row.JoinedAt),
		}
	}
	return members, nil
}
