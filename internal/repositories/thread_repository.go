package repositories

import (
	"context"
	"time"

	"github.com/anonto42/lost-found/backend/internal/models"
	"gorm.io/gorm"
)

type ThreadRepository interface {
	GetByID(ctx context.Context, id string) (*models.ChatThread, error)
	GetByClaimID(ctx context.Context, claimID string) (*models.ChatThread, error)
	Touch(ctx context.Context, id string, autoCloseAt time.Time) error
	CloseIdle(ctx context.Context, now time.Time) (int64, error)
}

type PostgresThreadRepository struct {
	db *gorm.DB
}

func NewPostgresThreadRepository(db *gorm.DB) *PostgresThreadRepository {
	return &PostgresThreadRepository{db: db}
}

func (r *PostgresThreadRepository) GetByID(ctx context.Context, id string) (*models.ChatThread, error) {
	var thread models.ChatThread
	if err := r.db.WithContext(ctx).First(&thread, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &thread, nil
}

func (r *PostgresThreadRepository) GetByClaimID(ctx context.Context, claimID string) (*models.ChatThread, error) {
	var thread models.ChatThread
	if err := r.db.WithContext(ctx).First(&thread, "claim_id = ?", claimID).Error; err != nil {
		return nil, translate(err)
	}
	return &thread, nil
}

// Touch pushes the auto-close deadline of an open thread forward.
func (r *PostgresThreadRepository) Touch(ctx context.Context, id string, autoCloseAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ChatThread{}).
		Where("id = ? AND is_closed = ?", id, false).
		Update("auto_close_at", autoCloseAt).Error
}

// CloseIdle closes every open thread whose deadline has passed.
func (r *PostgresThreadRepository) CloseIdle(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ChatThread{}).
		Where("is_closed = ? AND auto_close_at < ?", false, now).
		Updates(map[string]any{"is_closed": true, "closed_reason": models.ThreadClosedInactive})
	return res.RowsAffected, res.Error
}
