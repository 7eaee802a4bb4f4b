package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/weiawesome/realm-live/internal/domain"
)

// GormNotificationRepository implements NotificationRepository using GORM.
type GormNotificationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormNotificationRepository creates a new GORM-based notification repository.
func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db, now: time.Now}
}

// Create stores a new unread notification. Ids are ULIDs stamped with the
// creation time, so id order breaks ties between rows created in the same
// millisecond.
func (r *GormNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	createdAt := r.now().UTC().Truncate(time.Millisecond)
	model := &domain.NotificationModel{
		ID:        ulid.MustNew(ulid.Timestamp(createdAt), ulid.DefaultEntropy()).String(),
		UserID:    string(n.UserID),
		Kind:      string(n.Kind),
		Content:   n.Content,
		ProjectID: n.ProjectID,
		TaskID:    n.TaskID,
		// Stored at the precision it is shown with, so a listing returns
		// exactly what was pushed.
		CreatedAt: createdAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	*n = *model.ToDomain()
	return nil
}

// ListForUser lists a user's notifications, newest first.
func (r *GormNotificationRepository) ListForUser(ctx context.Context, userID string, filter domain.NotificationFilter) ([]domain.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = domain.DefaultNotificationLimit
	}

	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var models []domain.NotificationModel
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]domain.Notification, len(models))
	for i := range models {
		out[i] = *models[i].ToDomain()
	}
	return out, nil
}

// MarkRead marks the user's notification read. A notification belonging to
// someone else is reported as not found.
func (r *GormNotificationRepository) MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	var model domain.NotificationModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ? AND user_id = ?", id, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotificationNotFound
			}
			return err
		}
		if model.IsRead {
			return nil
		}
		if err := tx.Model(&domain.NotificationModel{}).
			Where("id = ? AND is_read = ?", id, false).
			Update("is_read", true).Error; err != nil {
			return err
		}
		model.IsRead = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}
